package transport

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	// PublicKeySize - размер открытого ключа X25519, первое сообщение канала
	PublicKeySize = curve25519.PointSize

	hkdfInfo   = "ssc-chat"
	sasBytes   = 6
	seqSize    = 8
	nonceShift = chacha20poly1305.NonceSize - seqSize
)

var (
	errReplay      = errors.New("replayed or out-of-order frame")
	errShortFrame  = errors.New("frame too short")
	errSameKeys    = errors.New("peer public key equals local key")
	errBadPeerKey  = errors.New("invalid peer public key")
	errSeqOverflow = errors.New("send sequence exhausted")
)

// keyPair - эфемерная пара ключей X25519, живет одно соединение
type keyPair struct {
	priv [curve25519.ScalarSize]byte
	pub  [PublicKeySize]byte
}

func newKeyPair() (*keyPair, error) {
	kp := &keyPair{}
	if _, err := io.ReadFull(rand.Reader, kp.priv[:]); err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	pub, err := curve25519.X25519(kp.priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}
	copy(kp.pub[:], pub)
	return kp, nil
}

// cryptoContext шифрует кадры канала двумя направленными ключами.
// Номер кадра идет открытым префиксом и служит nonce.
type cryptoContext struct {
	mu       sync.Mutex
	sealing  cipher.AEAD
	opening  cipher.AEAD
	sendN    uint64
	lastRecv uint64
	sas      string
}

// newCryptoContext выводит ключи из общего секрета X25519 через HKDF-SHA256.
// Сторона с меньшим открытым ключом отправляет первым ключом.
func newCryptoContext(local *keyPair, peerPub []byte) (*cryptoContext, error) {
	if len(peerPub) != PublicKeySize {
		return nil, errBadPeerKey
	}
	order := bytes.Compare(local.pub[:], peerPub)
	if order == 0 {
		return nil, errSameKeys
	}

	shared, err := curve25519.X25519(local.priv[:], peerPub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadPeerKey, err)
	}

	okm := make([]byte, 2*chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, nil, []byte(hkdfInfo)), okm); err != nil {
		return nil, fmt.Errorf("failed to expand keys: %w", err)
	}
	k1, k2 := okm[:chacha20poly1305.KeySize], okm[chacha20poly1305.KeySize:]

	sendKey, recvKey := k1, k2
	if order > 0 {
		sendKey, recvKey = k2, k1
	}

	sealing, err := chacha20poly1305.New(sendKey)
	if err != nil {
		return nil, fmt.Errorf("failed to init sealing key: %w", err)
	}
	opening, err := chacha20poly1305.New(recvKey)
	if err != nil {
		return nil, fmt.Errorf("failed to init opening key: %w", err)
	}

	sum := sha256.Sum256(k1)
	return &cryptoContext{
		sealing: sealing,
		opening: opening,
		sendN:   1,
		sas:     hex.EncodeToString(sum[:sasBytes]),
	}, nil
}

// SAS возвращает код для сверки, одинаковый у обеих сторон
func (c *cryptoContext) SAS() string {
	return c.sas
}

// seal шифрует кадр: 8 байт номера (BE) и шифротекст
func (c *cryptoContext) seal(plain []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sendN == 0 {
		return nil, errSeqOverflow
	}
	seq := c.sendN
	c.sendN++

	out := make([]byte, seqSize, seqSize+len(plain)+c.sealing.Overhead())
	binary.BigEndian.PutUint64(out, seq)
	return c.sealing.Seal(out, seqNonce(seq), plain, nil), nil
}

// open расшифровывает кадр и отклоняет номера не больше последнего принятого
func (c *cryptoContext) open(frame []byte) ([]byte, error) {
	if len(frame) < seqSize+c.opening.Overhead() {
		return nil, errShortFrame
	}
	seq := binary.BigEndian.Uint64(frame[:seqSize])

	c.mu.Lock()
	defer c.mu.Unlock()

	if seq <= c.lastRecv {
		return nil, fmt.Errorf("%w: seq %d, last %d", errReplay, seq, c.lastRecv)
	}
	plain, err := c.opening.Open(nil, seqNonce(seq), frame[seqSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt frame %d: %w", seq, err)
	}
	c.lastRecv = seq
	return plain, nil
}

func seqNonce(seq uint64) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint64(nonce[nonceShift:], seq)
	return nonce
}
