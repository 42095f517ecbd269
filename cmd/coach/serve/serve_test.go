package servecmder

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Serve Command", func() {
	freeAddr := func() string {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		addr := l.Addr().String()
		l.Close()
		return addr
	}

	It("relays chat requests until the context ends", func() {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"reply":"hello from backend"}`))
		}))
		defer backend.Close()

		addr := freeAddr()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		cmd := NewServeCmd()
		cmd.SetArgs([]string{"--listen", addr, "--backend", backend.URL})
		done := make(chan error, 1)
		go func() { done <- cmd.ExecuteContext(ctx) }()

		var body string
		Eventually(func() error {
			resp, err := http.Post("http://"+addr+"/api/chat", "application/json", strings.NewReader(`{"message":"hi"}`))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			b, _ := io.ReadAll(resp.Body)
			body = string(b)
			return nil
		}, 5*time.Second, 50*time.Millisecond).Should(Succeed())
		Expect(body).To(MatchJSON(`{"response":"hello from backend"}`))

		cancel()
		Eventually(done, 15*time.Second).Should(Receive(BeNil()))
	})

	It("fails when the address is taken", func() {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		defer l.Close()

		cmd := NewServeCmd()
		cmd.SetArgs([]string{"--listen", l.Addr().String()})
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		Expect(cmd.ExecuteContext(context.Background())).To(MatchError(ContainSubstring("could not listen")))
	})
})
