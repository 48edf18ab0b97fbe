package limits

import (
	"testing"
)

func TestValidatePlaintextMessage(t *testing.T) {
	tests := []struct {
		name    string
		message []byte
		wantErr error
	}{
		{name: "empty message", message: []byte{}, wantErr: ErrMessageEmpty},
		{name: "nil message", message: nil, wantErr: ErrMessageEmpty},
		{name: "valid small message", message: []byte("Hello, world!"), wantErr: nil},
		{name: "valid max-size message", message: make([]byte, MaxPlaintextMessage), wantErr: nil},
		{name: "message too large", message: make([]byte, MaxPlaintextMessage+1), wantErr: ErrMessageTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidatePlaintextMessage(tt.message); err != tt.wantErr {
				t.Errorf("ValidatePlaintextMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateEncryptedMessage(t *testing.T) {
	tests := []struct {
		name    string
		message []byte
		wantErr error
	}{
		{name: "empty message", message: []byte{}, wantErr: ErrMessageEmpty},
		{name: "valid small encrypted message", message: make([]byte, 100+PairwiseCiphertextOverhead), wantErr: nil},
		{name: "valid max-size encrypted message", message: make([]byte, MaxEncryptedMessage), wantErr: nil},
		{name: "encrypted message too large", message: make([]byte, MaxEncryptedMessage+1), wantErr: ErrMessageTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateEncryptedMessage(tt.message); err != tt.wantErr {
				t.Errorf("ValidateEncryptedMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateStorageMessage(t *testing.T) {
	tests := []struct {
		name    string
		message []byte
		wantErr error
	}{
		{name: "empty message", message: []byte{}, wantErr: ErrMessageEmpty},
		{name: "valid padded message 1024", message: make([]byte, 1024), wantErr: nil},
		{name: "valid max-size storage message", message: make([]byte, MaxStorageMessage), wantErr: nil},
		{name: "storage message too large", message: make([]byte, MaxStorageMessage+1), wantErr: ErrMessageTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateStorageMessage(tt.message); err != tt.wantErr {
				t.Errorf("ValidateStorageMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDatagram(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{name: "empty data", data: []byte{}, wantErr: ErrMessageEmpty},
		{name: "valid medium buffer", data: make([]byte, 65536), wantErr: nil},
		{name: "valid max-size buffer", data: make([]byte, MaxDatagramSize), wantErr: nil},
		{name: "buffer exceeds limit", data: make([]byte, MaxDatagramSize+1), wantErr: ErrMessageTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateDatagram(tt.data); err != tt.wantErr {
				t.Errorf("ValidateDatagram() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateMessageSize(t *testing.T) {
	tests := []struct {
		name    string
		message []byte
		maxSize int
		wantErr error
	}{
		{name: "empty message", message: []byte{}, maxSize: 100, wantErr: ErrMessageEmpty},
		{name: "valid message within limit", message: make([]byte, 50), maxSize: 100, wantErr: nil},
		{name: "message at exact limit", message: make([]byte, 100), maxSize: 100, wantErr: nil},
		{name: "message exceeds limit", message: make([]byte, 101), maxSize: 100, wantErr: ErrMessageTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateMessageSize(tt.message, tt.maxSize); err != tt.wantErr {
				t.Errorf("ValidateMessageSize() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConstantConsistency(t *testing.T) {
	if MaxEncryptedMessage <= MaxPlaintextMessage {
		t.Errorf("MaxEncryptedMessage (%d) should be > MaxPlaintextMessage (%d)", MaxEncryptedMessage, MaxPlaintextMessage)
	}
	if MaxStorageMessage <= MaxEncryptedMessage {
		t.Errorf("MaxStorageMessage (%d) should be > MaxEncryptedMessage (%d)", MaxStorageMessage, MaxEncryptedMessage)
	}
	if MaxDatagramSize <= MaxStorageMessage {
		t.Errorf("MaxDatagramSize (%d) should be > MaxStorageMessage (%d)", MaxDatagramSize, MaxStorageMessage)
	}
	if PairwiseCiphertextOverhead <= 0 {
		t.Errorf("PairwiseCiphertextOverhead must be positive, got %d", PairwiseCiphertextOverhead)
	}
}
