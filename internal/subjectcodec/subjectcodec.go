// Package subjectcodec implements the reversible mapping between user
// keys (arbitrary UTF-8 strings, including special characters) and the
// log's subject tokens.
package subjectcodec

import "encoding/base64"

// Encode returns the base64 (standard alphabet, padded) encoding of the
// UTF-8 bytes of key, suitable for embedding in a NATS subject token.
// Distinct keys never collide, and the mapping round-trips exactly.
func Encode(key string) string {
	return base64.StdEncoding.EncodeToString([]byte(key))
}

// Decode inverts Encode.
func Decode(token string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// PutSubject returns the PUT subject for key under stream.
func PutSubject(stream, key string) string {
	return stream + "." + Encode(key) + "-put"
}

// DeleteSubject returns the DELETE subject for key under stream.
func DeleteSubject(stream, key string) string {
	return stream + "." + Encode(key) + "-delete"
}

// SubjectFilter returns the wildcard subject filter used when creating a
// stream, matching every PUT/DELETE subject the stream will carry.
func SubjectFilter(stream string) string {
	return stream + ".*"
}
