package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		cmd  string
		want Category
	}{
		{"ls -la", CategoryFileSystem},
		{"RM -rf x", CategoryFileSystem},
		{"curl https://example.com", CategoryNetwork},
		{"pkill node", CategoryProcess},
		{"pip3 install requests", CategoryPackage},
		{"gh pr list", CategoryGit},
		{"env GOOS=linux go build ./...", CategoryBuild},
		{"systemctl restart nginx", CategorySystem},
		{". ./venv/bin/activate", CategoryShell},
		{"python main.py", CategoryOther},
		{"", CategoryOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Categorize(tt.cmd), tt.cmd)
	}
}

func TestCategoryString(t *testing.T) {
	assert.Equal(t, "git", CategoryGit.String())
	assert.Equal(t, "unknown", Category(99).String())
}
