package relay_test

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stevejgoodman/hotmesscoach/pkg/relay"
)

func readUpload(body io.Reader, contentType string) *multipart.Part {
	mediaType, params, err := mime.ParseMediaType(contentType)
	Expect(err).NotTo(HaveOccurred())
	Expect(mediaType).To(Equal("multipart/form-data"))

	r := multipart.NewReader(body, params["boundary"])
	part, err := r.NextPart()
	Expect(err).NotTo(HaveOccurred())
	return part
}

var _ = Describe("EncodeUpload", func() {
	It("preserves the filename, media type and bytes", func() {
		body, contentType, err := relay.EncodeUpload("data.csv", "text/csv", []byte("a,b\n1,2\n"))
		Expect(err).NotTo(HaveOccurred())

		part := readUpload(body, contentType)
		Expect(part.FormName()).To(Equal(relay.FileField))
		Expect(part.FileName()).To(Equal("data.csv"))
		Expect(part.Header.Get("Content-Type")).To(Equal("text/csv"))

		data, err := io.ReadAll(part)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("a,b\n1,2\n"))
	})

	It("defaults the media type to application/octet-stream", func() {
		body, contentType, err := relay.EncodeUpload("blob.bin", "", []byte{0})
		Expect(err).NotTo(HaveOccurred())

		part := readUpload(body, contentType)
		Expect(part.Header.Get("Content-Type")).To(Equal("application/octet-stream"))
	})

	It("escapes quotes in the filename", func() {
		body, contentType, err := relay.EncodeUpload(`my "best" file.txt`, "text/plain", []byte("x"))
		Expect(err).NotTo(HaveOccurred())

		part := readUpload(body, contentType)
		Expect(part.FileName()).To(Equal(`my "best" file.txt`))
	})
})

var _ = Describe("Response constructors", func() {
	It("builds rejected responses with the upstream status", func() {
		resp := relay.Rejected(http.StatusServiceUnavailable, "overloaded")

		Expect(resp.IsError()).To(BeTrue())
		Expect(resp.Status).To(Equal(503))
		Expect(resp.Detail).To(Equal("overloaded"))
		Expect(resp.Reason).To(Equal(relay.ReasonUpstreamRejected))
	})

	It("builds failures as 500s carrying the error text", func() {
		resp := relay.Failed(relay.ReasonTransportFailure, errors.New("connection refused"))

		Expect(resp.IsError()).To(BeTrue())
		Expect(resp.Status).To(Equal(http.StatusInternalServerError))
		Expect(resp.Detail).To(Equal("connection refused"))
	})

	It("does not flag successful responses as errors", func() {
		Expect(relay.Text("hi").IsError()).To(BeFalse())
		Expect(relay.Image("image/png", []byte{1}).IsError()).To(BeFalse())
		Expect(relay.Ack([]byte(`{}`)).IsError()).To(BeFalse())
	})
})
