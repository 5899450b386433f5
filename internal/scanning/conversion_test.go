package scanning

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// encodeTestImage renders a small two-tone image in the given format
func encodeTestImage(width, height int, format string) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x < width/2 {
				img.Set(x, y, color.RGBA{R: 255, A: 255})
			} else {
				img.Set(x, y, color.RGBA{B: 255, A: 255})
			}
		}
	}

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		Expect(jpeg.Encode(&buf, img, nil)).To(Succeed())
	default:
		Expect(png.Encode(&buf, img)).To(Succeed())
	}
	return buf.Bytes()
}

var _ = Describe("prepareImageData", func() {
	When("a PNG arrives with no preprocessing requested", func() {
		It("passes the bytes through untouched", func() {
			input := encodeTestImage(8, 4, "png")
			output, err := prepareImageData(input, "image/png", Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(output).To(Equal(input))
		})
	})

	When("a JPEG arrives", func() {
		It("re-encodes it as PNG", func() {
			input := encodeTestImage(8, 4, "jpeg")
			output, err := prepareImageData(input, "image/jpeg", Options{})
			Expect(err).NotTo(HaveOccurred())
			_, format, err := image.Decode(bytes.NewReader(output))
			Expect(err).NotTo(HaveOccurred())
			Expect(format).To(Equal("png"))
		})
	})

	When("rotation is requested", func() {
		It("swaps the image dimensions", func() {
			input := encodeTestImage(8, 4, "png")
			output, err := prepareImageData(input, "image/png", Options{Rotate: true})
			Expect(err).NotTo(HaveOccurred())
			img, _, err := image.Decode(bytes.NewReader(output))
			Expect(err).NotTo(HaveOccurred())
			Expect(img.Bounds().Dx()).To(Equal(4))
			Expect(img.Bounds().Dy()).To(Equal(8))
		})
	})

	When("grayscale is requested", func() {
		It("drops all color information", func() {
			input := encodeTestImage(8, 4, "png")
			output, err := prepareImageData(input, "image/png", Options{Grayscale: true})
			Expect(err).NotTo(HaveOccurred())
			img, _, err := image.Decode(bytes.NewReader(output))
			Expect(err).NotTo(HaveOccurred())
			r, g, b, _ := img.At(1, 1).RGBA()
			Expect(r).To(Equal(g))
			Expect(g).To(Equal(b))
		})
	})

	When("gaussian blur is requested", func() {
		It("still produces a decodable PNG of the same size", func() {
			input := encodeTestImage(8, 4, "png")
			output, err := prepareImageData(input, "image/png", Options{GaussianBlur: true})
			Expect(err).NotTo(HaveOccurred())
			img, _, err := image.Decode(bytes.NewReader(output))
			Expect(err).NotTo(HaveOccurred())
			Expect(img.Bounds().Dx()).To(Equal(8))
			Expect(img.Bounds().Dy()).To(Equal(4))
		})
	})

	When("the data is not a decodable image", func() {
		It("returns the error", func() {
			_, err := prepareImageData([]byte("not an image"), "image/jpeg", Options{})
			Expect(err).To(HaveOccurred())
		})
	})
})
