package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algorithmID = "argon2id"

	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
)

// Params are the argon2id cost parameters used for new hashes. Existing
// hashes carry their own parameters in the PHC string; Params only
// decides what Hash produces and what NeedsRehash compares against.
type Params struct {
	MemoryKB    uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams returns cost parameters suitable for interactive logins.
func DefaultParams() Params {
	return Params{
		MemoryKB:    64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher derives and verifies argon2id password hashes in PHC string
// format. A Hasher is immutable after construction and safe for
// concurrent use.
type Hasher struct {
	params Params
}

func NewHasher(p Params) (*Hasher, error) {
	if p.MemoryKB < minMemoryKB {
		return nil, errors.New("password memory must be >= 8192 KB")
	}
	if p.Time < minTimeCost {
		return nil, errors.New("password time must be >= 1")
	}
	if p.Parallelism < minParallelism {
		return nil, errors.New("password parallelism must be >= 1")
	}
	if p.SaltLength < minSaltLength {
		return nil, errors.New("password salt length must be >= 16")
	}
	if p.KeyLength < minKeyLength {
		return nil, errors.New("password key length must be >= 16")
	}
	return &Hasher{params: p}, nil
}

// Hash derives an argon2id hash of password under a fresh random salt
// and returns it in PHC format:
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt>$<hash>
//
// Password bytes are used exactly as provided, with no normalization.
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		h.params.Time,
		h.params.MemoryKB,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.params.MemoryKB,
		h.params.Time,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. The derivation uses
// the parameters embedded in encoded, so hashes created under older cost
// settings still verify. Comparison is constant time in the hash bytes.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	parsed, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(password),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		uint32(len(parsed.hash)),
	)

	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

// NeedsRehash reports whether encoded was produced under weaker
// parameters than the Hasher's own, meaning the stored hash should be
// replaced after the next successful verification.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	parsed, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	if h.params.MemoryKB > parsed.memory {
		return true, nil
	}
	if h.params.Time > parsed.time {
		return true, nil
	}
	if h.params.Parallelism > parsed.parallelism {
		return true, nil
	}
	if uint32(len(parsed.hash)) != h.params.KeyLength {
		return true, nil
	}
	return false, nil
}

type phcFields struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func parsePHC(encoded string) (*phcFields, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("invalid PHC format")
	}
	if parts[1] != algorithmID {
		return nil, errors.New("unsupported algorithm")
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return nil, errors.New("missing argon2 version")
	}
	v, err := strconv.Atoi(version)
	if err != nil || v != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	fields := &phcFields{}
	if err := parseCostParams(parts[3], fields); err != nil {
		return nil, err
	}

	fields.salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(fields.salt) < int(minSaltLength) {
		return nil, errors.New("invalid salt")
	}
	fields.hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(fields.hash) < int(minKeyLength) {
		return nil, errors.New("invalid hash")
	}
	return fields, nil
}

func parseCostParams(part string, out *phcFields) error {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return errors.New("invalid parameter format")
	}

	var seenM, seenT, seenP bool
	for _, pair := range pairs {
		key, val, ok := strings.Cut(pair, "=")
		if !ok {
			return errors.New("invalid parameter entry")
		}
		switch key {
		case "m":
			v, err := strconv.ParseUint(val, 10, 32)
			if err != nil || v < uint64(minMemoryKB) {
				return errors.New("invalid memory parameter")
			}
			out.memory = uint32(v)
			seenM = true
		case "t":
			v, err := strconv.ParseUint(val, 10, 32)
			if err != nil || v < uint64(minTimeCost) {
				return errors.New("invalid time parameter")
			}
			out.time = uint32(v)
			seenT = true
		case "p":
			v, err := strconv.ParseUint(val, 10, 8)
			if err != nil || v < uint64(minParallelism) {
				return errors.New("invalid parallelism parameter")
			}
			out.parallelism = uint8(v)
			seenP = true
		default:
			return errors.New("unsupported parameter")
		}
	}
	if !seenM || !seenT || !seenP {
		return errors.New("missing parameters")
	}
	return nil
}
