package app

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Command
	}{
		{
			name: "引数なしはserveにデフォルトする",
			args: []string{},
			want: CommandServe,
		},
		{
			name: "serveサブコマンド",
			args: []string{"serve"},
			want: CommandServe,
		},
		{
			name: "migrateサブコマンド",
			args: []string{"migrate"},
			want: CommandMigrate,
		},
		{
			name: "seedサブコマンド",
			args: []string{"seed"},
			want: CommandSeed,
		},
		{
			name: "healthcheckサブコマンド",
			args: []string{"healthcheck"},
			want: CommandHealthcheck,
		},
		{
			name: "未知のサブコマンドはserveにフォールバックする",
			args: []string{"unknown"},
			want: CommandServe,
		},
		{
			name: "追加の引数は無視される",
			args: []string{"migrate", "--verbose"},
			want: CommandMigrate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCommand(tt.args)
			if got != tt.want {
				t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}
