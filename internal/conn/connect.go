/*
 * Copyright (c) 2021-2022 UNNG Lab.
 */

package conn

import (
	"crypto/md5"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"io"
	"net"

	"pgcore/internal/cfg"
	"pgcore/internal/wire"
)

// Connect dials and authenticates using config, trying TLS/host fallbacks in order.
func (c *Conn) Connect(config *cfg.Config) error {
	fallbacks := []*cfg.FallbackConfig{{
		Host:      config.Host,
		Port:      config.Port,
		TLSConfig: config.TLSConfig,
	}}
	fallbacks = append(fallbacks, config.Fallbacks...)

	var err error
	for _, fb := range fallbacks {
		err = c.connect(config, fb)
		if err == nil {
			return nil
		}
		var pgErr *PgError
		if errors.As(err, &pgErr) {
			// The server was reached and refused us; trying another address with the
			// same credentials will not go better.
			return err
		}
	}
	return err
}

func (c *Conn) connect(config *cfg.Config, fallbackConfig *cfg.FallbackConfig) error {
	c.cleanupDone = make(chan struct{})
	var err error
	network, address := cfg.NetworkAddress(fallbackConfig.Host, fallbackConfig.Port)
	conn, err := config.DialFunc(network, address)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			err = &errTimeout{err: err}
		}
		return &connectError{config: config, msg: "dial error", err: err}
	}
	c.conn = conn
	c.config = config
	c.sess.Reset()

	if fallbackConfig.TLSConfig != nil {
		if err := c.startTLS(fallbackConfig.TLSConfig); err != nil {
			c.conn.Close()
			return &connectError{config: config, msg: "tls error", err: err}
		}
	}

	c.mutex.Lock()
	c.status = statusConnecting
	c.mutex.Unlock()

	c.frontend = config.BuildFrontend(c.conn, c.conn)

	startupMsg := wire.StartupMessage{
		ProtocolVersion: wire.ProtocolVersionNumber,
		Parameters:      make(map[string]string),
	}

	// Copy default run-time params
	for k, v := range config.RuntimeParams {
		startupMsg.Parameters[k] = v
	}

	startupMsg.Parameters["user"] = config.User
	if config.Database != "" {
		startupMsg.Parameters["database"] = config.Database
	}

	if _, err := c.conn.Write(startupMsg.Encode(c.wBuf)); err != nil {
		c.conn.Close()
		return &connectError{config: config, msg: "failed to write startup message", err: err}
	}

	for {
		msg, err := c.receiveMessage()
		if err != nil {
			c.conn.Close()
			var pgErr *PgError
			if errors.As(err, &pgErr) {
				return pgErr
			}
			return &connectError{config: config, msg: "failed to receive message", err: err}
		}

		switch msg := msg.(type) {
		case *wire.BackendKeyData:
			// folded into the session machine by receiveMessage
		case *wire.AuthenticationOk:
		case *wire.AuthenticationCleartextPassword:
			err = c.txPasswordMessage(config.Password)
			if err != nil {
				c.conn.Close()
				return &connectError{config: config, msg: "failed to write password message", err: err}
			}
		case *wire.AuthenticationMD5Password:
			digestedPassword := "md5" + hexMD5(hexMD5(config.Password+config.User)+string(msg.Salt[:]))
			err = c.txPasswordMessage(digestedPassword)
			if err != nil {
				c.conn.Close()
				return &connectError{config: config, msg: "failed to write password message", err: err}
			}
		case *wire.AuthenticationSASL:
			err = c.scramAuth(msg.AuthMechanisms, config)
			if err != nil {
				c.conn.Close()
				return &connectError{config: config, msg: "failed SASL auth", err: err}
			}
		case *wire.ReadyForQuery:
			c.mutex.Lock()
			c.status = statusIdle
			c.mutex.Unlock()
			return nil
		case *wire.ParameterStatus:
			// handled by receiveMessage
		case *wire.NoticeResponse:
		case *wire.ErrorResponse:
			c.conn.Close()
			return ErrorResponseToPgError(msg)
		default:
			c.conn.Close()
			return &connectError{config: config, msg: "received unexpected message"}
		}
	}
}

func (c *Conn) startTLS(tlsConfig *tls.Config) (err error) {
	if _, err = c.conn.Write((&wire.SSLRequest{}).Encode(nil)); err != nil {
		return
	}

	response := make([]byte, 1)
	if _, err = io.ReadFull(c.conn, response); err != nil {
		return
	}

	if response[0] != 'S' {
		return errors.New("server refused TLS connection")
	}

	c.conn = tls.Client(c.conn, tlsConfig)

	return nil
}

func (c *Conn) txPasswordMessage(password string) (err error) {
	msg := &wire.PasswordMessage{Password: password}
	_, err = c.conn.Write(msg.Encode(c.wBuf))
	return err
}

func hexMD5(s string) string {
	hash := md5.New()
	io.WriteString(hash, s)
	return hex.EncodeToString(hash.Sum(nil))
}

// CancelRequest opens a new connection to the server and sends a cancel request for the
// query in flight on this connection. Delivery is inherently racy: the request may
// arrive before, during or after the target operation. Best-effort only.
func (c *Conn) CancelRequest() error {
	pid, secretKey := c.sess.BackendKey()
	if pid == 0 {
		return errors.New("no backend key data")
	}

	network, address := cfg.NetworkAddress(c.config.Host, c.config.Port)
	cancelConn, err := c.config.DialFunc(network, address)
	if err != nil {
		return err
	}
	defer cancelConn.Close()

	msg := &wire.CancelRequest{ProcessID: pid, SecretKey: secretKey}
	if _, err := cancelConn.Write(msg.Encode(nil)); err != nil {
		return err
	}

	// The server closes the cancel connection without replying.
	if _, err := cancelConn.Read(make([]byte, 1)); err != nil && err != io.EOF {
		return err
	}
	return nil
}
