package templates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultTemplates(t *testing.T) {
	e, err := New("")
	require.NoError(t, err)

	out, err := e.Execute(HTTPVerbPrompt, map[string]string{"Verb": "GET", "Path": "/widgets/{id}"})
	require.NoError(t, err)
	require.Equal(t, "Apply the HTTP verb GET to the REST API endpoint with path '/widgets/{id}'.", out)

	out, err = e.Execute(PayloadStructured, map[string]string{"Text": "Rename widget 4 to Bolt"})
	require.NoError(t, err)
	require.Contains(t, out, "conforms to the JSON schema")
	require.Contains(t, out, "Rename widget 4 to Bolt")

	_, err = e.Execute("missing.tmpl", nil)
	require.ErrorContains(t, err, "template not found")
}

func TestCustomDirOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "selection"), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "selection", "http_verb.tmpl"),
		[]byte("Call {{.Verb}} on {{.Path}}\n"), 0644))

	e, err := New(dir)
	require.NoError(t, err)

	out, err := e.Execute(HTTPVerbPrompt, map[string]string{"Verb": "POST", "Path": "/widgets"})
	require.NoError(t, err)
	require.Equal(t, "Call POST on /widgets", out)

	out, err = e.Execute(PayloadSystem, nil)
	require.NoError(t, err)
	require.Contains(t, out, "use the tool calls")
}

func TestCustomDirErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.tmpl"), []byte("{{.Verb"), 0644))

	_, err := New(dir)
	require.ErrorContains(t, err, "parsing custom template")

	_, err = New(filepath.Join(dir, "does-not-exist"))
	require.NoError(t, err)
}
