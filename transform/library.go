package transform

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"math/big"
	"net/url"
	"time"

	"github.com/Shopify/go-lua"
	"github.com/google/uuid"
	"github.com/tfkr-ae/arsenal/codec"
)

const defaultCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// registerLibrary sets the arsenal global: utilities at the top level and
// the crypto, encoding, codec and random tables below it.
func registerLibrary(l *lua.State) {
	lua.NewLibrary(l, utilsLibrary())

	register := func(name string, funcs []lua.RegistryFunction) {
		lua.NewLibrary(l, funcs)
		l.SetField(-2, name)
	}
	register("crypto", cryptoLibrary())
	register("codec", codecLibrary())
	register("random", randomLibrary())

	l.NewTable()
	register("base64", base64Library())
	register("hex", hexLibrary())
	register("url", urlLibrary())
	l.SetField(-2, "encoding")

	l.SetGlobal("arsenal")
}

func utilsLibrary() []lua.RegistryFunction {
	return []lua.RegistryFunction{
		// uuid returns a new UUIDv7 string.
		{Name: "uuid", Function: func(l *lua.State) int {
			id, err := uuid.NewV7()
			if err != nil {
				lua.Errorf(l, "generating uuid: %s", err.Error())
				return 0
			}
			l.PushString(id.String())
			return 1
		}},
		// timestamp returns the current Unix time in milliseconds.
		{Name: "timestamp", Function: func(l *lua.State) int {
			l.PushNumber(float64(time.Now().UnixMilli()))
			return 1
		}},
	}
}

// cryptoLibrary hashes strings to hex digests.
func cryptoLibrary() []lua.RegistryFunction {
	return []lua.RegistryFunction{
		{Name: "md5", Function: func(l *lua.State) int {
			hash := md5.Sum([]byte(lua.CheckString(l, 1)))
			l.PushString(hex.EncodeToString(hash[:]))
			return 1
		}},
		{Name: "sha1", Function: func(l *lua.State) int {
			hash := sha1.Sum([]byte(lua.CheckString(l, 1)))
			l.PushString(hex.EncodeToString(hash[:]))
			return 1
		}},
		{Name: "sha256", Function: func(l *lua.State) int {
			hash := sha256.Sum256([]byte(lua.CheckString(l, 1)))
			l.PushString(hex.EncodeToString(hash[:]))
			return 1
		}},
		// hmac_sha256(secret, message)
		{Name: "hmac_sha256", Function: func(l *lua.State) int {
			mac := hmac.New(sha256.New, []byte(lua.CheckString(l, 1)))
			mac.Write([]byte(lua.CheckString(l, 2)))
			l.PushString(hex.EncodeToString(mac.Sum(nil)))
			return 1
		}},
	}
}

// codecLibrary encodes and decodes with the codecs of codec.Default, so a
// script can unpack a payload embedded as text in another one.
func codecLibrary() []lua.RegistryFunction {
	return []lua.RegistryFunction{
		// encode(name, value) returns value encoded as a string.
		{Name: "encode", Function: func(l *lua.State) int {
			name := lua.CheckString(l, 1)
			data, err := codec.Marshal(name, goValue(l, 2))
			if err != nil {
				lua.Errorf(l, "encoding %s: %s", name, err.Error())
				return 0
			}
			l.PushString(string(data))
			return 1
		}},
		// decode(name, text) returns the decoded value.
		{Name: "decode", Function: func(l *lua.State) int {
			name := lua.CheckString(l, 1)
			decoded, err := codec.Unmarshal(name, []byte(lua.CheckString(l, 2)))
			if err != nil {
				lua.Errorf(l, "decoding %s: %s", name, err.Error())
				return 0
			}
			pushValue(l, decoded)
			return 1
		}},
	}
}

func base64Library() []lua.RegistryFunction {
	return []lua.RegistryFunction{
		{Name: "encode", Function: func(l *lua.State) int {
			l.PushString(base64.StdEncoding.EncodeToString([]byte(lua.CheckString(l, 1))))
			return 1
		}},
		{Name: "decode", Function: func(l *lua.State) int {
			encoded := lua.CheckString(l, 1)
			decoded, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				lua.Errorf(l, "decoding base64 %s: %s", encoded, err.Error())
				return 0
			}
			l.PushString(string(decoded))
			return 1
		}},
	}
}

func hexLibrary() []lua.RegistryFunction {
	return []lua.RegistryFunction{
		{Name: "encode", Function: func(l *lua.State) int {
			l.PushString(hex.EncodeToString([]byte(lua.CheckString(l, 1))))
			return 1
		}},
		{Name: "decode", Function: func(l *lua.State) int {
			encoded := lua.CheckString(l, 1)
			decoded, err := hex.DecodeString(encoded)
			if err != nil {
				lua.Errorf(l, "decoding hex %s: %s", encoded, err.Error())
				return 0
			}
			l.PushString(string(decoded))
			return 1
		}},
	}
}

// urlLibrary escapes for query strings.
func urlLibrary() []lua.RegistryFunction {
	return []lua.RegistryFunction{
		{Name: "encode", Function: func(l *lua.State) int {
			l.PushString(url.QueryEscape(lua.CheckString(l, 1)))
			return 1
		}},
		{Name: "decode", Function: func(l *lua.State) int {
			encoded := lua.CheckString(l, 1)
			decoded, err := url.QueryUnescape(encoded)
			if err != nil {
				lua.Errorf(l, "decoding url %s: %s", encoded, err.Error())
				return 0
			}
			l.PushString(decoded)
			return 1
		}},
	}
}

func randomLibrary() []lua.RegistryFunction {
	return []lua.RegistryFunction{
		// int(min, max) returns a random integer in [min, max].
		{Name: "int", Function: func(l *lua.State) int {
			lo := lua.CheckInteger(l, 1)
			hi := lua.CheckInteger(l, 2)
			if lo > hi {
				lua.ArgumentError(l, 1, "minimum value cannot be greater than max")
				return 0
			}

			span := big.NewInt(int64(hi) - int64(lo) + 1)
			n, err := rand.Int(rand.Reader, span)
			if err != nil {
				lua.Errorf(l, "generating random int: %s", err.Error())
				return 0
			}
			l.PushInteger(lo + int(n.Int64()))
			return 1
		}},
		// string(length, charset) returns a random string, alphanumeric unless
		// charset is given.
		{Name: "string", Function: func(l *lua.State) int {
			length := lua.CheckInteger(l, 1)
			charset := lua.OptString(l, 2, defaultCharset)
			if length <= 0 {
				l.PushString("")
				return 1
			}
			if len(charset) == 0 {
				lua.ArgumentError(l, 2, "charset cannot be empty")
				return 0
			}

			result := make([]byte, length)
			size := big.NewInt(int64(len(charset)))
			for i := range result {
				n, err := rand.Int(rand.Reader, size)
				if err != nil {
					lua.Errorf(l, "generating random int: %s", err.Error())
					return 0
				}
				result[i] = charset[n.Int64()]
			}
			l.PushString(string(result))
			return 1
		}},
	}
}
