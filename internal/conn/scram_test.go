/*
 * Copyright (c) 2021-2022 UNNG Lab.
 */

package conn

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
)

func TestScramClientFirstMessage(t *testing.T) {
	sc := &scramClient{
		password:    []byte("pencil"),
		clientNonce: []byte("rOprNGfwEbeRWgbNEkqO"),
	}

	// No channel binding, empty username (the server takes it from the startup
	// message), then the nonce.
	assert.Equal(t, "n,,n=,r=rOprNGfwEbeRWgbNEkqO", string(sc.clientFirstMessage()))
}

func TestScramRejectsForeignServerNonce(t *testing.T) {
	sc := &scramClient{
		password:    []byte("pencil"),
		clientNonce: []byte("rOprNGfwEbeRWgbNEkqO"),
	}
	sc.clientFirstMessage()

	// The server nonce must extend the client nonce, otherwise a relay could splice
	// exchanges together.
	err := sc.recvServerFirstMessage([]byte("r=completely-different,s=" +
		base64.StdEncoding.EncodeToString([]byte("salt")) + ",i=4096"))
	require.Error(t, err)
}

func TestScramRejectsMissingIterations(t *testing.T) {
	sc := &scramClient{
		password:    []byte("pencil"),
		clientNonce: []byte("abc"),
	}
	sc.clientFirstMessage()

	err := sc.recvServerFirstMessage([]byte("r=abcdef,s=" +
		base64.StdEncoding.EncodeToString([]byte("salt"))))
	require.Error(t, err)
}

// TestScramExchange plays the server side of RFC 7677 independently of the client
// implementation: it derives the stored key from the password itself and verifies the
// client proof by reversing the XOR, exactly as a real server does.
func TestScramExchange(t *testing.T) {
	const password = "pencil"
	salt := []byte("0123456789abcdef")
	const iterations = 4096

	sc := &scramClient{
		password:    []byte(password),
		clientNonce: []byte("rOprNGfwEbeRWgbNEkqO"),
	}

	clientFirst := sc.clientFirstMessage()
	require.True(t, strings.HasPrefix(string(clientFirst), "n,,"))
	clientFirstBare := string(clientFirst[3:])

	serverNonce := string(sc.clientNonce) + "3rfcNHYJY1ZVvWVs7j"
	serverFirst := "r=" + serverNonce +
		",s=" + base64.StdEncoding.EncodeToString(salt) +
		",i=4096"
	require.NoError(t, sc.recvServerFirstMessage([]byte(serverFirst)))

	clientFinal := string(sc.clientFinalMessage())
	require.True(t, strings.HasPrefix(clientFinal, "c=biws,r="+serverNonce+",p="))
	proofB64 := clientFinal[strings.Index(clientFinal, ",p=")+3:]
	proof, err := base64.StdEncoding.DecodeString(proofB64)
	require.NoError(t, err)

	// Server-side verification.
	saltedPassword := pbkdf2.Key([]byte(password), salt, iterations, 32, sha256.New)
	clientKey := computeHMAC(saltedPassword, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)
	authMessage := clientFirstBare + "," + serverFirst + "," +
		clientFinal[:strings.Index(clientFinal, ",p=")]
	clientSignature := computeHMAC(storedKey[:], []byte(authMessage))

	recoveredKey := make([]byte, len(proof))
	for i := range proof {
		recoveredKey[i] = proof[i] ^ clientSignature[i]
	}
	recoveredStored := sha256.Sum256(recoveredKey)
	assert.Equal(t, storedKey, recoveredStored, "client proof does not verify")

	// And the client must accept the genuine server signature but nothing else.
	serverKey := computeHMAC(saltedPassword, []byte("Server Key"))
	serverSignature := computeHMAC(serverKey, []byte(authMessage))
	require.NoError(t, sc.verifyServerFinalMessage(
		[]byte("v="+base64.StdEncoding.EncodeToString(serverSignature))))

	tampered := append([]byte(nil), serverSignature...)
	tampered[0] ^= 0xff
	require.Error(t, sc.verifyServerFinalMessage(
		[]byte("v="+base64.StdEncoding.EncodeToString(tampered))))
}

func TestScramRequiresSHA256Mechanism(t *testing.T) {
	c := New(nil)
	err := c.scramAuth([]string{"SCRAM-SHA-1", "PLAIN"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCRAM-SHA-256")
}

func TestHMACIsDeterministic(t *testing.T) {
	a := computeHMAC([]byte("key"), []byte("msg"))
	b := computeHMAC([]byte("key"), []byte("msg"))
	assert.True(t, hmac.Equal(a, b))
	assert.Len(t, a, sha256.Size)
}
