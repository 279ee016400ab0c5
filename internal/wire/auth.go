package wire

import (
	"github.com/jackc/pgio"
)

const (
	authTypeOk                = 0
	authTypeCleartextPassword = 3
	authTypeMD5Password       = 5
	authTypeSASL              = 10
	authTypeSASLContinue      = 11
	authTypeSASLFinal         = 12
)

// AuthenticationOk reports successful authentication.
type AuthenticationOk struct{}

func (*AuthenticationOk) Backend() {}

func (m *AuthenticationOk) Decode(data []byte) error {
	rb := readBuf{data: data}
	if rb.uint32() != authTypeOk {
		rb.bad = true
	}
	return rb.err('R')
}

func (m *AuthenticationOk) Encode(dst []byte) []byte {
	dst, sp := beginMsg(dst, 'R')
	dst = pgio.AppendUint32(dst, authTypeOk)
	return finishMsg(dst, sp)
}

// AuthenticationCleartextPassword requests a plain PasswordMessage.
type AuthenticationCleartextPassword struct{}

func (*AuthenticationCleartextPassword) Backend() {}

func (m *AuthenticationCleartextPassword) Decode(data []byte) error {
	rb := readBuf{data: data}
	if rb.uint32() != authTypeCleartextPassword {
		rb.bad = true
	}
	return rb.err('R')
}

func (m *AuthenticationCleartextPassword) Encode(dst []byte) []byte {
	dst, sp := beginMsg(dst, 'R')
	dst = pgio.AppendUint32(dst, authTypeCleartextPassword)
	return finishMsg(dst, sp)
}

// AuthenticationMD5Password requests an MD5 digested password using the given salt.
type AuthenticationMD5Password struct {
	Salt [4]byte
}

func (*AuthenticationMD5Password) Backend() {}

func (m *AuthenticationMD5Password) Decode(data []byte) error {
	rb := readBuf{data: data}
	if rb.uint32() != authTypeMD5Password {
		rb.bad = true
	}
	copy(m.Salt[:], rb.next(4))
	return rb.err('R')
}

func (m *AuthenticationMD5Password) Encode(dst []byte) []byte {
	dst, sp := beginMsg(dst, 'R')
	dst = pgio.AppendUint32(dst, authTypeMD5Password)
	dst = append(dst, m.Salt[:]...)
	return finishMsg(dst, sp)
}

// AuthenticationSASL starts a SASL exchange and advertises the mechanisms the server
// accepts, in order of preference.
type AuthenticationSASL struct {
	AuthMechanisms []string
}

func (*AuthenticationSASL) Backend() {}

func (m *AuthenticationSASL) Decode(data []byte) error {
	rb := readBuf{data: data}
	if rb.uint32() != authTypeSASL {
		rb.bad = true
	}
	m.AuthMechanisms = nil
	for len(rb.data) > 1 {
		m.AuthMechanisms = append(m.AuthMechanisms, rb.cstring())
	}
	return rb.err('R')
}

func (m *AuthenticationSASL) Encode(dst []byte) []byte {
	dst, sp := beginMsg(dst, 'R')
	dst = pgio.AppendUint32(dst, authTypeSASL)
	for _, s := range m.AuthMechanisms {
		dst = appendCString(dst, s)
	}
	dst = append(dst, 0)
	return finishMsg(dst, sp)
}

// AuthenticationSASLContinue carries the server-first or intermediate SASL challenge.
type AuthenticationSASLContinue struct {
	Data []byte
}

func (*AuthenticationSASLContinue) Backend() {}

func (m *AuthenticationSASLContinue) Decode(data []byte) error {
	rb := readBuf{data: data}
	if rb.uint32() != authTypeSASLContinue {
		rb.bad = true
	}
	m.Data = rb.next(len(rb.data))
	return rb.err('R')
}

func (m *AuthenticationSASLContinue) Encode(dst []byte) []byte {
	dst, sp := beginMsg(dst, 'R')
	dst = pgio.AppendUint32(dst, authTypeSASLContinue)
	dst = append(dst, m.Data...)
	return finishMsg(dst, sp)
}

// AuthenticationSASLFinal carries the server-final SASL message (server signature).
type AuthenticationSASLFinal struct {
	Data []byte
}

func (*AuthenticationSASLFinal) Backend() {}

func (m *AuthenticationSASLFinal) Decode(data []byte) error {
	rb := readBuf{data: data}
	if rb.uint32() != authTypeSASLFinal {
		rb.bad = true
	}
	m.Data = rb.next(len(rb.data))
	return rb.err('R')
}

func (m *AuthenticationSASLFinal) Encode(dst []byte) []byte {
	dst, sp := beginMsg(dst, 'R')
	dst = pgio.AppendUint32(dst, authTypeSASLFinal)
	dst = append(dst, m.Data...)
	return finishMsg(dst, sp)
}

// PasswordMessage carries a cleartext or MD5 digested password.
type PasswordMessage struct {
	Password string
}

func (*PasswordMessage) Frontend() {}

func (m *PasswordMessage) Encode(dst []byte) []byte {
	dst, sp := beginMsg(dst, 'p')
	dst = appendCString(dst, m.Password)
	return finishMsg(dst, sp)
}

func (m *PasswordMessage) Decode(data []byte) error {
	rb := readBuf{data: data}
	m.Password = rb.cstring()
	return rb.err('p')
}

// SASLInitialResponse carries the client-first SASL message. It shares the 'p' tag with
// PasswordMessage; the exchange phase disambiguates.
type SASLInitialResponse struct {
	AuthMechanism string
	Data          []byte
}

func (*SASLInitialResponse) Frontend() {}

func (m *SASLInitialResponse) Encode(dst []byte) []byte {
	dst, sp := beginMsg(dst, 'p')
	dst = appendCString(dst, m.AuthMechanism)
	dst = pgio.AppendInt32(dst, int32(len(m.Data)))
	dst = append(dst, m.Data...)
	return finishMsg(dst, sp)
}

// SASLResponse carries the client-final SASL message.
type SASLResponse struct {
	Data []byte
}

func (*SASLResponse) Frontend() {}

func (m *SASLResponse) Encode(dst []byte) []byte {
	dst, sp := beginMsg(dst, 'p')
	dst = append(dst, m.Data...)
	return finishMsg(dst, sp)
}
