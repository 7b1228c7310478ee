package edid

import (
	"encoding/binary"
	"testing"
)

// buildEDID constructs a minimal synthetic base block for testing: a
// manufacturer id, a base-block serial, and one "display product name"
// descriptor.
func buildEDID(mfg string, baseSerial uint32, productName string) []byte {
	raw := make([]byte, baseBlockLen)

	// Pack 3 letters into bytes 8-9, big-endian, 5 bits each.
	var v uint16
	for _, c := range []byte(mfg) {
		v = (v << 5) | uint16(c-'A'+1)
	}
	binary.BigEndian.PutUint16(raw[8:10], v)

	binary.LittleEndian.PutUint32(raw[12:16], baseSerial)

	off := descriptorStart
	raw[off] = 0
	raw[off+1] = 0
	raw[off+2] = 0
	raw[off+3] = descTagDisplayName
	raw[off+4] = 0
	copy(raw[off+5:off+descriptorLen], productName)
	if len(productName) < descriptorLen-5 {
		raw[off+5+len(productName)] = 0x0A
	}
	return raw
}

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		raw         []byte
		wantMfg     string
		wantProduct string
		wantSerial  string
		wantErr     bool
	}{
		{
			name:        "typical monitor",
			raw:         buildEDID("DEL", 12345, "U2720Q"),
			wantMfg:     "DEL",
			wantProduct: "U2720Q",
			wantSerial:  "12345",
		},
		{
			name:    "too short",
			raw:     make([]byte, 10),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := Parse(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if info.Manufacturer != tt.wantMfg {
				t.Errorf("Manufacturer = %q, want %q", info.Manufacturer, tt.wantMfg)
			}
			if info.Product != tt.wantProduct {
				t.Errorf("Product = %q, want %q", info.Product, tt.wantProduct)
			}
			if info.Serial != tt.wantSerial {
				t.Errorf("Serial = %q, want %q", info.Serial, tt.wantSerial)
			}
		})
	}
}

func TestParseFallsBackToBaseSerialWithoutDescriptor(t *testing.T) {
	raw := make([]byte, baseBlockLen)
	binary.LittleEndian.PutUint32(raw[12:16], 999)
	info, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Serial != "999" {
		t.Errorf("Serial = %q, want %q", info.Serial, "999")
	}
}
