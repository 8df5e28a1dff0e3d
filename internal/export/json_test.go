package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/iksnae/copilot-session/internal"
)

func TestJSONExporter_Export(t *testing.T) {
	tests := []struct {
		name    string
		conv    *internal.Conversation
		wantErr bool
	}{
		{
			name:    "basic conversation",
			conv:    internal.CreateTestConversation(1),
			wantErr: false,
		},
		{
			name:    "empty conversation",
			conv:    internal.CreateTestConversationWithMessages(2, []internal.Message{}),
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			exporter := &JSONExporter{}

			err := exporter.Export(tt.conv, &buf)
			if (err != nil) != tt.wantErr {
				t.Errorf("JSONExporter.Export() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				output := buf.String()
				var got internal.Conversation
				if err := json.Unmarshal([]byte(output), &got); err != nil {
					t.Errorf("Output is not valid JSON: %v\nOutput: %s", err, output)
					return
				}

				if got.ID != tt.conv.ID || got.Title != tt.conv.Title {
					t.Errorf("decoded session = %d %q, want %d %q", got.ID, got.Title, tt.conv.ID, tt.conv.Title)
				}
				if len(got.Messages) != len(tt.conv.Messages) {
					t.Errorf("decoded %d messages, want %d", len(got.Messages), len(tt.conv.Messages))
				}

				if !strings.Contains(output, "\n  ") {
					t.Errorf("Output should be pretty-printed with indentation")
				}
			}
		})
	}
}

func TestJSONExporter_Extension(t *testing.T) {
	exporter := &JSONExporter{}
	if got := exporter.Extension(); got != "json" {
		t.Errorf("JSONExporter.Extension() = %v, want json", got)
	}
}
