package opener

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecCommand(t *testing.T) {
	tests := []struct {
		goos string
		want []string
	}{
		{"linux", []string{"xdg-open", "/srv/a.pdf"}},
		{"freebsd", []string{"xdg-open", "/srv/a.pdf"}},
		{"darwin", []string{"open", "/srv/a.pdf"}},
		{"windows", []string{"rundll32", "url.dll,FileProtocolHandler", "/srv/a.pdf"}},
	}
	for _, tt := range tests {
		e := &Exec{goos: tt.goos}
		assert.Equal(t, tt.want, e.Command("/srv/a.pdf"), tt.goos)
	}
}

func TestExecCommandKeepsShellCharactersInOneArgument(t *testing.T) {
	e := &Exec{goos: "windows"}
	p := `C:\data\a&calc.exe`

	argv := e.Command(p)
	assert.NotEqual(t, "cmd", argv[0])
	assert.Equal(t, p, argv[len(argv)-1])
	for _, arg := range argv[:len(argv)-1] {
		assert.NotContains(t, arg, "&")
	}
}

func TestDisabled(t *testing.T) {
	assert.ErrorIs(t, Disabled{}.Open(context.Background(), "/x"), ErrDisabled)
}
