package policy

import (
	"errors"
	"testing"
)

func TestCommonParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  CommonParams
		wantErr bool
	}{
		{name: "valid", params: CommonParams{CacheSize: 1024}},
		{name: "with overhead", params: CommonParams{CacheSize: 1024, PerObjectOverhead: 8}},
		{name: "zero size", params: CommonParams{}, wantErr: true},
		{name: "negative overhead", params: CommonParams{CacheSize: 1, PerObjectOverhead: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidCommonParams) {
				t.Errorf("Validate() error = %v, want ErrInvalidCommonParams", err)
			}
		})
	}
}
