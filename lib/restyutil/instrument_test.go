package restyutil

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

type memoryOutput struct {
	mutex    sync.Mutex
	messages map[string]string
}

func (m *memoryOutput) Write(id string, contents string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.messages == nil {
		m.messages = map[string]string{}
	}
	m.messages[id] = contents
}

func TestInstrumentClientDumpsMessages(t *testing.T) {
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer slog.SetDefault(previous)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-portal", "apti")
		fmt.Fprint(w, "<html>ok</html>")
	}))
	defer server.Close()

	out := &memoryOutput{}
	client := resty.New()
	InstrumentClient(client, nil, out, "pwd", "cookie")

	_, err := client.R().
		SetContext(context.Background()).
		SetHeader("cookie", "se%5Ftoken=secret-token").
		SetFormData(map[string]string{"id": "someone", "pwd": "hunter2"}).
		Post(server.URL + "/member/login_ok.asp")
	require.NoError(t, err)

	require.Len(t, out.messages, 1)
	message := out.messages["1"]
	require.True(t, strings.Contains(message, "---- REQUEST ----"))
	require.True(t, strings.Contains(message, "---- RESPONSE ----"))
	require.True(t, strings.Contains(message, "<html>ok</html>"))
	require.True(t, strings.Contains(message, "id=someone"))
	require.True(t, strings.Contains(message, "X-Portal: apti"))
	require.False(t, strings.Contains(message, "hunter2"))
	require.False(t, strings.Contains(message, "secret-token"))
}

func TestRedactor(t *testing.T) {
	r := newRedactor([]string{"Set-Cookie", "login_pwd"})
	require.True(t, r.hides("set-cookie"))
	require.True(t, r.hides("LOGIN_PWD"))
	require.False(t, r.hides("login_id"))

	headers := http.Header{}
	headers.Add("Set-Cookie", "se%5Ftoken=abc")
	headers.Add("Content-Type", "text/html")
	require.Equal(t, "Content-Type: text/html\nSet-Cookie: <REDACTED>", r.headers(headers))
}

func TestInstrumentClientNilOutput(t *testing.T) {
	client := resty.New()
	InstrumentClient(client, nil, nil)
}

func TestFilesystemOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "resty")
	out, err := NewFilesystemOutput(dir)
	require.NoError(t, err)

	out.Write("1", "hello")
	contents, err := os.ReadFile(filepath.Join(dir, "1"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(contents))
}
