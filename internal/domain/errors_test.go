package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestSkippableError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		context string
		want    string
	}{
		{
			name:    "with context and error",
			err:     errors.New("underlying error"),
			context: "caching rain",
			want:    "caching rain: underlying error",
		},
		{
			name:    "with context only",
			err:     nil,
			context: "already cached",
			want:    "already cached",
		},
		{
			name:    "with error only",
			err:     errors.New("underlying error"),
			context: "",
			want:    "underlying error",
		},
		{
			name:    "empty",
			err:     nil,
			context: "",
			want:    "skippable error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := NewSkippableError(tt.err, tt.context)
			if got := se.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsSkippable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "skippable error",
			err:  NewSkippableError(errors.New("err"), "context"),
			want: true,
		},
		{
			name: "wrapped skippable error",
			err:  fmt.Errorf("wrapped: %w", NewSkippableError(errors.New("err"), "context")),
			want: true,
		},
		{
			name: "regular error",
			err:  errors.New("regular error"),
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "predefined skippable error",
			err:  ErrSkipOffline,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSkippable(tt.err); got != tt.want {
				t.Errorf("IsSkippable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFetchError(t *testing.T) {
	tests := []struct {
		name       string
		err        *FetchError
		wantMsg    string
		wantStatus int
		wantOk     bool
	}{
		{
			name:       "status only",
			err:        &FetchError{URL: "http://x/rain.mp3", StatusCode: http.StatusNotFound},
			wantMsg:    "fetch http://x/rain.mp3: unexpected status 404",
			wantStatus: 404,
			wantOk:     true,
		},
		{
			name:    "transport error",
			err:     &FetchError{URL: "http://x/rain.mp3", Err: errors.New("connection refused")},
			wantMsg: "fetch http://x/rain.mp3: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !errors.Is(tt.err, ErrFetchFailed) {
				t.Error("FetchError should match ErrFetchFailed")
			}
			status, ok := StatusCode(fmt.Errorf("wrapped: %w", tt.err))
			if status != tt.wantStatus || ok != tt.wantOk {
				t.Errorf("StatusCode() = (%d, %v), want (%d, %v)", status, ok, tt.wantStatus, tt.wantOk)
			}
		})
	}
}

func TestFetchError_UnwrapsCause(t *testing.T) {
	cause := errors.New("timeout")
	err := &FetchError{URL: "u", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("FetchError should unwrap to its cause")
	}
}

func TestPredefinedSkippableErrors(t *testing.T) {
	if !errors.Is(ErrSkipUnknownSound, ErrUnknownSound) {
		t.Error("ErrSkipUnknownSound should unwrap to ErrUnknownSound")
	}
	if !errors.Is(ErrSkipOffline, ErrOffline) {
		t.Error("ErrSkipOffline should unwrap to ErrOffline")
	}
}
