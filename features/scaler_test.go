package features

import (
	"strings"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/walltime/resources"
)

var _ = ginkgo.Describe("Scaler", func() {
	ginkgo.It("should standardize without touching the input", func() {
		mean := make([]float64, Dimension)
		scale := make([]float64, Dimension)
		for i := range mean {
			mean[i] = 1
			scale[i] = 4
		}
		scale[3] = 0

		scaler, err := NewScaler(mean, scale)
		Expect(err).NotTo(HaveOccurred())

		in := make([]float64, Dimension)
		for i := range in {
			in[i] = 9
		}

		out, err := scaler.Transform(in)

		Expect(err).NotTo(HaveOccurred())
		Expect(out[0]).To(Equal(2.0))
		Expect(out[3]).To(Equal(8.0))
		Expect(in[0]).To(Equal(9.0))
	})

	ginkgo.It("should reject the wrong dimension", func() {
		_, err := NewScaler([]float64{1}, []float64{1})
		Expect(err).To(HaveOccurred())
	})

	ginkgo.It("should reject a vector of the wrong length", func() {
		scaler, err := NewScaler(make([]float64, Dimension), make([]float64, Dimension))
		Expect(err).NotTo(HaveOccurred())

		_, err = scaler.Transform([]float64{1, 2})
		Expect(err).To(HaveOccurred())
	})

	ginkgo.It("should load the bundled scaler", func() {
		f, err := resources.FS.Open("model/" + resources.DefaultScaler + ".json")
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()

		scaler, err := LoadScaler(f)
		Expect(err).NotTo(HaveOccurred())
		Expect(scaler.mean).To(HaveLen(Dimension))
	})

	ginkgo.It("should reject an unknown format", func() {
		_, err := LoadScaler(strings.NewReader(`{"format": "pickle"}`))
		Expect(err).To(MatchError(ContainSubstring("unrecognized scaler format")))
	})
})
