package chatcmder

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/stevejgoodman/hotmesscoach/pkg/conversation"
	"github.com/stevejgoodman/hotmesscoach/server"
	"github.com/stevejgoodman/hotmesscoach/upstream"
)

var _ = Describe("Chat Command", func() {
	var (
		ctx      context.Context
		tmpDir   string
		uploads  int
		backend  *httptest.Server
		relaySrv *httptest.Server
	)

	png := []byte("\x89PNG\r\n\x1a\nfake chart")

	BeforeEach(func() {
		ctx = context.Background()
		tmpDir = GinkgoT().TempDir()
		uploads = 0

		backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/api/uploadfile/":
				uploads++
				w.Write([]byte(`{"message":"CSV file loaded successfully"}`))
			case "/api/chat":
				body := new(bytes.Buffer)
				body.ReadFrom(r.Body)
				switch {
				case strings.Contains(body.String(), "plot"):
					w.Header().Set("Content-Type", "image/png")
					w.Write(png)
				case strings.Contains(body.String(), "break"):
					w.WriteHeader(http.StatusServiceUnavailable)
					w.Write([]byte("overloaded"))
				default:
					w.Write([]byte(`{"reply":"hello"}`))
				}
			}
		}))

		fwd := upstream.New(upstream.Config{BaseURL: backend.URL}, zap.NewNop())
		relaySrv = httptest.NewServer(server.New(server.Config{}, fwd, zap.NewNop()).Handler())
	})

	AfterEach(func() {
		relaySrv.Close()
		backend.Close()
	})

	runChat := func(input string, extra ...string) string {
		out := new(bytes.Buffer)
		cmd := NewChatCmd()
		cmd.SetArgs(append([]string{"--plain", "--no-greeting", "--relay", relaySrv.URL}, extra...))
		cmd.SetIn(strings.NewReader(input))
		cmd.SetOut(out)
		Expect(cmd.ExecuteContext(ctx)).To(Succeed())
		return out.String()
	}

	It("relays a message and prints the reply", func() {
		out := runChat("hi\n")

		Expect(out).To(ContainSubstring("[1] you> hi"))
		Expect(out).To(ContainSubstring("[2] coach> hello"))
	})

	It("shows the greeting unless disabled", func() {
		out := new(bytes.Buffer)
		cmd := NewChatCmd()
		cmd.SetArgs([]string{"--plain", "--relay", relaySrv.URL})
		cmd.SetIn(strings.NewReader(""))
		cmd.SetOut(out)
		Expect(cmd.ExecuteContext(ctx)).To(Succeed())

		Expect(out.String()).To(ContainSubstring(conversation.DefaultGreeting))
	})

	It("apologizes when the backend fails", func() {
		out := runChat("break it\n")

		Expect(out).To(ContainSubstring(conversation.ApologyText))
	})

	It("ignores empty lines", func() {
		out := runChat("\n   \n/quit\n")

		Expect(out).NotTo(ContainSubstring("you>"))
	})

	It("attaches a file, receives a chart and saves it", func() {
		csvPath := filepath.Join(tmpDir, "week.csv")
		Expect(os.WriteFile(csvPath, []byte("day,mood\nmon,3\n"), 0o644)).To(Succeed())
		chartPath := filepath.Join(tmpDir, "chart.png")

		out := runChat(strings.Join([]string{
			"/attach " + csvPath,
			"plot my week",
			"/save 2 " + chartPath,
			"/quit",
			"never sent",
		}, "\n") + "\n")

		Expect(uploads).To(Equal(1))
		Expect(out).To(ContainSubstring("* attached week.csv"))
		Expect(out).To(ContainSubstring("[2] coach> " + conversation.ChartText))
		Expect(out).To(ContainSubstring("/save 2 <file>"))
		Expect(out).To(ContainSubstring("* saved chart to " + chartPath))
		Expect(out).NotTo(ContainSubstring("never sent"))

		data, err := os.ReadFile(chartPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal(png))
	})

	It("reports command errors without stopping", func() {
		out := runChat("/attach " + filepath.Join(tmpDir, "missing.csv") + "\n/save 9 x.png\n/bogus\nhi\n")

		Expect(out).To(ContainSubstring("! could not read"))
		Expect(out).To(ContainSubstring("! no message with id 9"))
		Expect(out).To(ContainSubstring("! unknown command /bogus"))
		Expect(out).To(ContainSubstring("coach> hello"))
	})

	It("drops an attachment on /remove", func() {
		csvPath := filepath.Join(tmpDir, "week.csv")
		Expect(os.WriteFile(csvPath, []byte("x"), 0o644)).To(Succeed())

		out := runChat("/attach " + csvPath + "\n/remove\n")
		Expect(out).To(ContainSubstring("* attachment removed"))
	})
})

var _ = Describe("mediaTypeOf", func() {
	It("prefers the extension", func() {
		Expect(mediaTypeOf("chart.png", []byte("not really"))).To(Equal("image/png"))
	})

	It("sniffs content without a known extension", func() {
		Expect(mediaTypeOf("notes", []byte("plain words"))).To(HavePrefix("text/plain"))
	})
})
