package negotiate_test

import (
	"encoding/json"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stevejgoodman/hotmesscoach/pkg/negotiate"
	"github.com/stevejgoodman/hotmesscoach/pkg/relay"
)

func header(contentType string) http.Header {
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return h
}

var _ = Describe("Classify", func() {
	Context("when the content type is an image", func() {
		It("returns the bytes unmodified with the header value as media type", func() {
			body := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}

			resp, err := negotiate.Classify(header("image/png"), body)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Kind).To(Equal(relay.KindImage))
			Expect(resp.MediaType).To(Equal("image/png"))
			Expect(resp.Bytes).To(Equal(body))
		})

		It("keeps content type parameters verbatim", func() {
			resp, err := negotiate.Classify(header("image/svg+xml; charset=utf-8"), []byte("<svg/>"))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Kind).To(Equal(relay.KindImage))
			Expect(resp.MediaType).To(Equal("image/svg+xml; charset=utf-8"))
		})

		It("never tries to decode image bytes as JSON", func() {
			resp, err := negotiate.Classify(header("IMAGE/JPEG"), []byte("{not json"))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Kind).To(Equal(relay.KindImage))
		})
	})

	Context("when the content type is not an image", func() {
		It("decodes JSON into text", func() {
			resp, err := negotiate.Classify(header("application/json"), []byte(`{"reply":"hello"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Kind).To(Equal(relay.KindText))
			Expect(resp.Text).To(Equal("hello"))
		})

		It("decodes JSON even without a content type", func() {
			resp, err := negotiate.Classify(header(""), []byte(`{"message":"hi"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Text).To(Equal("hi"))
		})

		It("reports malformed JSON as a decode failure", func() {
			_, err := negotiate.Classify(header("application/json"), []byte(`{"reply":`))
			Expect(err).To(MatchError(negotiate.ErrDecode))
		})

		It("reports an empty body as a decode failure", func() {
			_, err := negotiate.Classify(header("text/plain"), nil)
			Expect(err).To(MatchError(negotiate.ErrDecode))
		})

		It("reports a bare null as a decode failure", func() {
			_, err := negotiate.Classify(header("application/json"), []byte(" null "))
			Expect(err).To(MatchError(negotiate.ErrDecode))
		})
	})
})

var _ = Describe("Extract", func() {
	DescribeTable("priority order",
		func(body string, expected string) {
			text, err := negotiate.Extract([]byte(body))
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal(expected))
		},
		Entry("reply wins over everything", `{"reply":"a","response":"b","message":"c","error":"d"}`, "a"),
		Entry("response when reply is absent", `{"response":"b","message":"c","error":"d"}`, "b"),
		Entry("message when reply and response are absent", `{"message":"c","error":"d"}`, "c"),
		Entry("error is prefixed", `{"error":"boom"}`, "Error: boom"),
		Entry("empty reply falls through", `{"reply":"","response":"b"}`, "b"),
		Entry("null reply falls through", `{"reply":null,"message":"c"}`, "c"),
		Entry("false and zero fall through", `{"reply":false,"response":0,"message":"c"}`, "c"),
		Entry("non-string values render as JSON", `{"reply":{"text":"x"}}`, `{"text":"x"}`),
		Entry("numbers render as JSON text", `{"reply":42}`, "42"),
		Entry("unknown shape falls back to the payload", `{"filename": "a.csv", "rows": 3}`, `{"filename":"a.csv","rows":3}`),
		Entry("empty object falls back to the payload", `{}`, `{}`),
		Entry("non-object JSON falls back to the payload", `[1, 2]`, `[1,2]`),
		Entry("error that is empty falls back", `{"error":""}`, `{"error":""}`),
	)

	It("applies custom rules in order", func() {
		n := negotiate.New(negotiate.Field("b"), negotiate.Field("a"))

		text, err := n.Extract([]byte(`{"a":"first","b":"second"}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("second"))
	})

	It("never fails on any combination of known fields", func() {
		names := []string{"reply", "response", "message", "error"}
		for mask := 0; mask < 1<<len(names); mask++ {
			obj := map[string]string{}
			for i, name := range names {
				if mask&(1<<i) != 0 {
					obj[name] = name + "-value"
				}
			}
			body, err := json.Marshal(obj)
			Expect(err).NotTo(HaveOccurred())

			text, err := negotiate.Extract(body)
			Expect(err).NotTo(HaveOccurred())

			switch {
			case mask&1 != 0:
				Expect(text).To(Equal("reply-value"))
			case mask&2 != 0:
				Expect(text).To(Equal("response-value"))
			case mask&4 != 0:
				Expect(text).To(Equal("message-value"))
			case mask&8 != 0:
				Expect(text).To(Equal("Error: error-value"))
			default:
				Expect(text).To(Equal("{}"))
			}
		}
	})
})

var _ = Describe("IsImage", func() {
	It("matches image media types only", func() {
		Expect(negotiate.IsImage("image/png")).To(BeTrue())
		Expect(negotiate.IsImage("Image/Gif")).To(BeTrue())
		Expect(negotiate.IsImage("application/json")).To(BeFalse())
		Expect(negotiate.IsImage("image")).To(BeFalse())
		Expect(negotiate.IsImage("")).To(BeFalse())
	})
})
