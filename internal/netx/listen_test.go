package netx

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cretz/bine/tor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// selfSigned writes a throwaway certificate for 127.0.0.1 and returns the
// PEM file paths.
func selfSigned(t *testing.T) (string, string) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "smugglebox test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certFile, keyFile
}

func serve(t *testing.T, ln net.Listener) {
	t.Helper()
	srv := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "ok")
		}),
		ReadHeaderTimeout: time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })
}

func get(t *testing.T, client *http.Client, url string) string {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestListen_TCP(t *testing.T) {
	ln, err := Listen(context.Background(), Options{Addr: "127.0.0.1:0"})
	require.NoError(t, err)
	serve(t, ln)

	assert.True(t, strings.HasPrefix(ln.URL(), "http://127.0.0.1:"), ln.URL())
	assert.Equal(t, "ok", get(t, http.DefaultClient, ln.URL()+"/"))
}

func TestListen_TLS(t *testing.T) {
	certFile, keyFile := selfSigned(t)

	ln, err := Listen(context.Background(), Options{Addr: "127.0.0.1:0", TLS: true, CertFile: certFile, KeyFile: keyFile})
	require.NoError(t, err)
	serve(t, ln)

	require.True(t, strings.HasPrefix(ln.URL(), "https://127.0.0.1:"), ln.URL())

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}}
	assert.Equal(t, "ok", get(t, client, ln.URL()+"/"))
}

func TestListen_Errors(t *testing.T) {
	t.Run("missing certificate", func(t *testing.T) {
		_, err := Listen(context.Background(), Options{Addr: "127.0.0.1:0", TLS: true, CertFile: "nope.pem", KeyFile: "nope.key"})
		assert.Error(t, err)
	})

	t.Run("address in use", func(t *testing.T) {
		first, err := Listen(context.Background(), Options{Addr: "127.0.0.1:0"})
		require.NoError(t, err)
		defer first.Close()

		_, err = Listen(context.Background(), Options{Addr: first.Addr().String()})
		assert.Error(t, err)
	})

	t.Run("tor does not start", func(t *testing.T) {
		orig := startTor
		t.Cleanup(func() { startTor = orig })

		boom := errors.New("tor binary not found")
		startTor = func(context.Context, *tor.StartConf) (*tor.Tor, error) { return nil, boom }

		_, err := Listen(context.Background(), Options{Addr: ":80", Onion: true})
		require.ErrorIs(t, err, boom)
	})
}

func TestVirtualPort(t *testing.T) {
	tests := []struct {
		addr string
		want int
	}{
		{":8080", 8080},
		{"127.0.0.1:443", 443},
		{":0", 80},
		{"garbage", 80},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, virtualPort(tt.addr), tt.addr)
	}
}
