// Package credential hashes and verifies shared secrets such as room passwords.
package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"

	"golang.org/x/crypto/argon2"
)

var ErrEmptyPassword = errors.New("password must not be empty")

type Params struct {
	Time    uint32 `json:"t"`
	Memory  uint32 `json:"m"` // KiB
	Threads uint8  `json:"p"`
	KeyLen  uint32 `json:"k"`
	SaltLen uint32 `json:"s"`
}

// DefaultParams is the policy for new hashes.
var DefaultParams = Params{Time: 3, Memory: 64 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

const algoArgon2id = "argon2id"

// Stored is the persisted shape a Hasher can verify against.
type Stored interface {
	GetAlgo() string
	GetHash() []byte
	GetSalt() []byte
	GetParamsJSON() []byte
	GetVersion() int
}

type Hashed struct {
	Algo       string
	Hash       []byte
	Salt       []byte
	ParamsJSON []byte
	Version    int
}

type Hasher interface {
	Hash(password string) (Hashed, error)
	Verify(password string, cred Stored) (rehash bool, ok bool)
}

type Argon2id struct {
	version int
	params  Params
}

func NewArgon2id() *Argon2id { return NewArgon2idWithParams(DefaultParams) }

// NewArgon2idWithParams is mostly useful to keep tests fast.
func NewArgon2idWithParams(p Params) *Argon2id {
	return &Argon2id{version: 1, params: p}
}

func (a *Argon2id) Hash(password string) (Hashed, error) {
	if password == "" {
		return Hashed{}, ErrEmptyPassword
	}
	salt := make([]byte, a.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return Hashed{}, err
	}
	params, err := json.Marshal(a.params)
	if err != nil {
		return Hashed{}, err
	}
	return Hashed{
		Algo:       algoArgon2id,
		Hash:       argon2.IDKey([]byte(password), salt, a.params.Time, a.params.Memory, a.params.Threads, a.params.KeyLen),
		Salt:       salt,
		ParamsJSON: params,
		Version:    a.version,
	}, nil
}

// Verify recomputes the key with the stored cost. rehash is only set on a
// successful match whose stored policy differs from the current one.
func (a *Argon2id) Verify(password string, cred Stored) (rehash bool, ok bool) {
	if password == "" || cred.GetAlgo() != algoArgon2id {
		return false, false
	}
	var stored Params
	if err := json.Unmarshal(cred.GetParamsJSON(), &stored); err != nil {
		return false, false
	}
	got := argon2.IDKey([]byte(password), cred.GetSalt(), stored.Time, stored.Memory, stored.Threads, stored.KeyLen)
	ok = subtle.ConstantTimeCompare(got, cred.GetHash()) == 1
	return ok && (cred.GetVersion() != a.version || stored != a.params), ok
}
