package conn

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/secure/precis"

	"pgcore/internal/cfg"
	"pgcore/internal/wire"
)

const clientNonceLen = 18

// scramAuth runs the SCRAM-SHA-256 exchange (RFC 5802, RFC 7677). Channel binding is
// not offered; the TLS layer, when active, was negotiated before authentication.
func (c *Conn) scramAuth(serverAuthMechanisms []string, config *cfg.Config) error {
	supported := false
	for _, m := range serverAuthMechanisms {
		if m == "SCRAM-SHA-256" {
			supported = true
		}
	}
	if !supported {
		return fmt.Errorf("server does not support SCRAM-SHA-256, offered %v", serverAuthMechanisms)
	}

	sc, err := newScramClient(config.Password)
	if err != nil {
		return err
	}

	// client-first-message
	saslInitial := &wire.SASLInitialResponse{
		AuthMechanism: "SCRAM-SHA-256",
		Data:          sc.clientFirstMessage(),
	}
	if _, err := c.conn.Write(saslInitial.Encode(c.wBuf)); err != nil {
		return err
	}

	msg, err := c.receiveMessage()
	if err != nil {
		return err
	}
	saslContinue, ok := msg.(*wire.AuthenticationSASLContinue)
	if !ok {
		return fmt.Errorf("expected SASL continue, got %T", msg)
	}
	if err := sc.recvServerFirstMessage(saslContinue.Data); err != nil {
		return err
	}

	// client-final-message
	saslResponse := &wire.SASLResponse{Data: sc.clientFinalMessage()}
	if _, err := c.conn.Write(saslResponse.Encode(c.wBuf)); err != nil {
		return err
	}

	msg, err = c.receiveMessage()
	if err != nil {
		return err
	}
	saslFinal, ok := msg.(*wire.AuthenticationSASLFinal)
	if !ok {
		return fmt.Errorf("expected SASL final, got %T", msg)
	}
	return sc.verifyServerFinalMessage(saslFinal.Data)
}

type scramClient struct {
	password    []byte
	clientNonce []byte

	clientFirstMessageBare []byte
	serverFirstMessage     []byte
	serverNonce            []byte
	salt                   []byte
	iterations             int

	saltedPassword []byte
	authMessage    []byte
}

func newScramClient(password string) (*scramClient, error) {
	// Normalize per SASLprep; an unnormalizable password is used as-is, matching libpq.
	prepared, err := precis.OpaqueString.String(password)
	if err != nil {
		prepared = password
	}

	nonce := make([]byte, clientNonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return &scramClient{
		password:    []byte(prepared),
		clientNonce: []byte(base64.RawStdEncoding.EncodeToString(nonce)),
	}, nil
}

func (sc *scramClient) clientFirstMessage() []byte {
	sc.clientFirstMessageBare = []byte("n=,r=" + string(sc.clientNonce))
	return append([]byte("n,,"), sc.clientFirstMessageBare...)
}

func (sc *scramClient) recvServerFirstMessage(data []byte) error {
	sc.serverFirstMessage = data
	var saltB64 string
	for _, attr := range strings.Split(string(data), ",") {
		if len(attr) < 2 || attr[1] != '=' {
			return errors.New("invalid SCRAM server-first-message")
		}
		switch attr[0] {
		case 'r':
			sc.serverNonce = []byte(attr[2:])
		case 's':
			saltB64 = attr[2:]
		case 'i':
			n, err := strconv.Atoi(attr[2:])
			if err != nil {
				return errors.New("invalid SCRAM iteration count")
			}
			sc.iterations = n
		}
	}

	if !bytes.HasPrefix(sc.serverNonce, sc.clientNonce) {
		return errors.New("SCRAM server nonce does not start with client nonce")
	}
	if sc.iterations <= 0 {
		return errors.New("SCRAM iteration count missing")
	}

	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return errors.New("invalid SCRAM salt")
	}
	sc.salt = salt
	return nil
}

func (sc *scramClient) clientFinalMessage() []byte {
	withoutProof := []byte("c=biws,r=" + string(sc.serverNonce))

	sc.saltedPassword = pbkdf2.Key(sc.password, sc.salt, sc.iterations, 32, sha256.New)
	sc.authMessage = bytes.Join([][]byte{
		sc.clientFirstMessageBare,
		sc.serverFirstMessage,
		withoutProof,
	}, []byte(","))

	clientKey := computeHMAC(sc.saltedPassword, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)
	clientSignature := computeHMAC(storedKey[:], sc.authMessage)

	proof := make([]byte, len(clientKey))
	for i := range proof {
		proof[i] = clientKey[i] ^ clientSignature[i]
	}

	return append(append(withoutProof, ",p="...), base64.StdEncoding.EncodeToString(proof)...)
}

func (sc *scramClient) verifyServerFinalMessage(data []byte) error {
	msg := string(data)
	if !strings.HasPrefix(msg, "v=") {
		return errors.New("invalid SCRAM server-final-message")
	}
	serverSignature, err := base64.StdEncoding.DecodeString(msg[2:])
	if err != nil {
		return errors.New("invalid SCRAM server signature encoding")
	}

	serverKey := computeHMAC(sc.saltedPassword, []byte("Server Key"))
	expected := computeHMAC(serverKey, sc.authMessage)
	if !hmac.Equal(serverSignature, expected) {
		return errors.New("SCRAM server signature mismatch")
	}
	return nil
}

func computeHMAC(key, msg []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}
