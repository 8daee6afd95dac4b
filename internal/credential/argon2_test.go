package credential

import "testing"

type storedCred struct{ Hashed }

func (s storedCred) GetAlgo() string       { return s.Algo }
func (s storedCred) GetHash() []byte       { return s.Hash }
func (s storedCred) GetSalt() []byte       { return s.Salt }
func (s storedCred) GetParamsJSON() []byte { return s.ParamsJSON }
func (s storedCred) GetVersion() int       { return s.Version }

var fastParams = Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func TestHashAndVerify(t *testing.T) {
	h := NewArgon2idWithParams(fastParams)

	hashed, err := h.Hash("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, ok := h.Verify("s3cret", storedCred{hashed}); !ok {
		t.Fatal("expected password to verify")
	}
	if _, ok := h.Verify("wrong", storedCred{hashed}); ok {
		t.Fatal("wrong password verified")
	}
	if _, ok := h.Verify("", storedCred{hashed}); ok {
		t.Fatal("empty password verified")
	}
}

func TestVerifyRequestsRehashOnPolicyChange(t *testing.T) {
	old := NewArgon2idWithParams(fastParams)
	hashed, err := old.Hash("pw")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	stronger := fastParams
	stronger.Time = 2
	rehash, ok := NewArgon2idWithParams(stronger).Verify("pw", storedCred{hashed})
	if !ok || !rehash {
		t.Fatalf("expected ok and rehash, got ok=%v rehash=%v", ok, rehash)
	}
}

func TestHashRejectsEmpty(t *testing.T) {
	if _, err := NewArgon2idWithParams(fastParams).Hash(""); err != ErrEmptyPassword {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
}
