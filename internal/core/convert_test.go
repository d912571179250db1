package core

import "testing"

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "simple string unchanged",
			input: "SW-01",
			want:  "SW-01",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
		{
			name:  "surrounded by whitespace",
			input: "  10.0.0.1\t",
			want:  "10.0.0.1",
		},
		{
			name:  "Excel text formula",
			input: `="0042"`,
			want:  "0042",
		},
		{
			name:  "Excel text formula with padding",
			input: ` =" CAM-7 " `,
			want:  "CAM-7",
		},
		{
			name:  "lone equals kept",
			input: "=",
			want:  "=",
		},
		{
			name:  "unterminated formula kept",
			input: `="abc`,
			want:  `="abc`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanCell(tt.input); got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsEmptyRow(t *testing.T) {
	tests := []struct {
		name string
		row  []string
		want bool
	}{
		{"empty slice", []string{}, true},
		{"empty strings", []string{"", "", ""}, true},
		{"whitespace only cells", []string{"   ", "\t", "\r\n"}, true},
		{"one value", []string{"", "SW-01"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isEmptyRow(tt.row); got != tt.want {
				t.Errorf("isEmptyRow(%q) = %v, want %v", tt.row, got, tt.want)
			}
		})
	}
}

func BenchmarkCleanCell(b *testing.B) {
	inputs := []string{"SW-01", "  10.0.0.1  ", `="0042"`}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		CleanCell(inputs[i%len(inputs)])
	}
}
