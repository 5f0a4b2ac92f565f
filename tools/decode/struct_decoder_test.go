package decode

import (
	"errors"
	"testing"

	"PPAdmin/tools/errs"
)

type payload struct {
	ReceiverID string   `json:"receiver_user_id"`
	Content    string   `json:"content"`
	Limit      int      `json:"limit"`
	UserIDs    []string `json:"user_ids"`
}

func TestRaw(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		opts    []Options
		want    payload
		wantErr bool
	}{
		{
			name: "plain",
			raw:  `{"receiver_user_id":"b","content":"hi","limit":3}`,
			want: payload{ReceiverID: "b", Content: "hi", Limit: 3},
		},
		{
			name: "numeric ids become strings",
			raw:  `{"user_ids":["a", 42]}`,
			want: payload{UserIDs: []string{"a", "42"}},
		},
		{
			name: "null is empty",
			raw:  `null`,
		},
		{
			name:    "array is not an object",
			raw:     `[1,2]`,
			wantErr: true,
		},
		{
			name:    "unused field rejected when strict",
			raw:     `{"content":"x","extra":1}`,
			opts:    []Options{{WeaklyTypedInput: true, ErrorUnused: true}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Raw[payload]([]byte(tt.raw), tt.opts...)
			if tt.wantErr {
				if !errors.Is(err, errs.ErrArgs) {
					t.Fatalf("want ErrArgs, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Raw: %v", err)
			}
			if got.ReceiverID != tt.want.ReceiverID || got.Content != tt.want.Content || got.Limit != tt.want.Limit {
				t.Errorf("got %+v, want %+v", *got, tt.want)
			}
			if len(got.UserIDs) != len(tt.want.UserIDs) {
				t.Fatalf("user_ids = %v, want %v", got.UserIDs, tt.want.UserIDs)
			}
			for i := range got.UserIDs {
				if got.UserIDs[i] != tt.want.UserIDs[i] {
					t.Errorf("user_ids[%d] = %q", i, got.UserIDs[i])
				}
			}
		})
	}
}
