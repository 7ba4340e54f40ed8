package policy

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/GoCodeAlone/laf/laferrors"
)

// ValidationClient talks the length-prefixed (big-endian uint32 + JSON)
// protocol to the external validation microservice over SOCK_STREAM.
type ValidationClient struct {
	SocketPath string
	Timeout    time.Duration
}

// NewValidationClient creates a client bound to a unix-domain stream socket.
func NewValidationClient(socketPath string) *ValidationClient {
	return &ValidationClient{SocketPath: socketPath, Timeout: 10 * time.Second}
}

// Validate sends req and returns either an augmented request document or an
// error decoded from a {_error: ...} reply.
func (c *ValidationClient) Validate(req map[string]any) (map[string]any, error) {
	conn, err := net.DialTimeout("unix", c.SocketPath, c.Timeout)
	if err != nil {
		return nil, &laferrors.TransportError{Service: "validation", Err: err}
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.Timeout))

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling validation request: %w", err)
	}
	if err := writeFrame(conn, payload); err != nil {
		return nil, &laferrors.TransportError{Service: "validation", Err: err}
	}

	reply, err := readFrame(conn)
	if err != nil {
		return nil, &laferrors.TransportError{Service: "validation", Err: err}
	}

	var decoded map[string]any
	if err := json.Unmarshal(reply, &decoded); err != nil {
		return nil, &laferrors.TransportError{Service: "validation", Err: err}
	}
	if errVal, ok := decoded["_error"]; ok {
		return nil, &laferrors.HandlerDomainError{Payload: errVal, Code: 400}
	}
	return decoded, nil
}

// writeFrame writes a 4-byte big-endian length prefix followed by payload.
func writeFrame(conn net.Conn, payload []byte) error {
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))
	if _, err := conn.Write(header); err != nil {
		return err
	}
	_, err := conn.Write(payload)
	return err
}

// readFrame reads a 4-byte big-endian length prefix and then that many bytes.
func readFrame(conn net.Conn) ([]byte, error) {
	header := make([]byte, 4)
	if _, err := fullRead(conn, header); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header)
	payload := make([]byte, size)
	if _, err := fullRead(conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func fullRead(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
