package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const petsSpec = `openapi: 3.0.3
info:
  title: Pets
  version: 1.0.0
servers:
  - url: https://pets.example.com
paths:
  /pets:
    get:
      summary: List pets
      responses:
        "200":
          description: OK
  /pets/{id}:
    delete:
      description: Remove a pet from the store.
      parameters:
        - name: id
          in: path
          required: true
          schema:
            type: integer
      responses:
        "204":
          description: Deleted
`

const twoServersSpec = `openapi: 3.0.3
info:
  title: Pets
  version: 1.0.0
servers:
  - url: https://a.example.com
  - url: https://b.example.com
paths:
  /pets:
    get:
      summary: List pets
      responses:
        "200":
          description: OK
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := RootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeSpec(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "spec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestValidateCommand(t *testing.T) {
	path := writeSpec(t, petsSpec)

	out, err := run(t, "validate", "--spec", path, "--skip-openapi-schema")
	require.NoError(t, err)
	assert.Contains(t, out, "Pets v1.0.0 is valid")
	assert.Contains(t, out, "Operations: 2")
}

func TestValidateCommandReportsViolations(t *testing.T) {
	path := writeSpec(t, twoServersSpec)

	out, err := run(t, "validate", "--spec", path, "--skip-openapi-schema")
	require.ErrorContains(t, err, "violation(s) found")
	assert.NotEmpty(t, out)
}

func TestConfigureDryRun(t *testing.T) {
	path := writeSpec(t, petsSpec)

	out, err := run(t, "configure", "--dry-run", "--skip-openapi-schema",
		"--spec", path,
		"--configuration-id", "7d4f3c2a-1b0e-4f8d-9c6b-5a4e3d2c1b0a",
		"--log-level", "error")
	require.NoError(t, err)

	var got configureOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "7d4f3c2a-1b0e-4f8d-9c6b-5a4e3d2c1b0a", got.SpecificationID)
	assert.Equal(t, 2, got.Paths)
	assert.Equal(t, 2, got.Operations)
	require.Len(t, got.ToolCalls, 2)

	var desc struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	require.NoError(t, json.Unmarshal(got.ToolCalls[1], &desc))
	assert.Equal(t, "function", desc.Type)
	assert.Equal(t, "delete_pets_-id-", desc.Function.Name)
}

func TestConfigureRequiresConfigurationID(t *testing.T) {
	path := writeSpec(t, petsSpec)

	_, err := run(t, "configure", "--dry-run", "--spec", path)
	require.ErrorContains(t, err, "configuration-id is required")
}

func TestRetrieveRequiresDatabase(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := run(t, "retrieve",
		"--configuration-id", "7d4f3c2a-1b0e-4f8d-9c6b-5a4e3d2c1b0a",
		"--text", "list pets")
	require.ErrorContains(t, err, "database.url is required")
}
