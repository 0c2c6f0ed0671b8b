package walltime

import (
	"errors"

	"github.com/go-logr/logr/funcr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Architecture", func() {
	var (
		arch *Architecture
		conv ConvSpec
	)

	BeforeEach(func() {
		var err error
		arch, err = NewArchitecture(3, 224)
		Expect(err).NotTo(HaveOccurred())

		conv = ConvSpec{
			KernelSize:  3,
			ChannelsOut: 64,
			Padding:     PaddingValid,
			Strides:     1,
			UseBias:     true,
			Activation:  "relu",
		}
	})

	It("should reject a negative input", func() {
		_, err := NewArchitecture(-1, 224)

		var inputErr *InvalidInputError
		Expect(errors.As(err, &inputErr)).To(BeTrue())
		Expect(inputErr.Field).To(Equal("dimension"))
	})

	It("should derive the first layer from the input", func() {
		layer, err := arch.AppendConvolution("conv1", conv)

		Expect(err).NotTo(HaveOccurred())
		Expect(layer.Index).To(Equal(1))
		Expect(layer.Conv.MatSize).To(Equal(224))
		Expect(layer.Conv.ChannelsIn).To(Equal(3))
		Expect(layer.OutputSize()).To(Equal(222))
		Expect(layer.ChannelsOut()).To(Equal(64))
	})

	It("should chain shapes from the previous layer", func() {
		_, err := arch.AppendConvolution("conv1", conv)
		Expect(err).NotTo(HaveOccurred())

		pool, err := arch.AppendMaxPool("pool1", PoolSpec{
			PoolSize: 2, Strides: 2, Padding: PaddingSame,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(pool.OutputSize()).To(Equal(111))
		Expect(pool.ChannelsOut()).To(Equal(64))

		conv.ChannelsOut = 128
		conv2, err := arch.AppendConvolution("conv2", conv)
		Expect(err).NotTo(HaveOccurred())
		Expect(conv2.Index).To(Equal(3))
		Expect(conv2.Conv.MatSize).To(Equal(111))
		Expect(conv2.Conv.ChannelsIn).To(Equal(64))
		Expect(conv2.OutputSize()).To(Equal(109))
	})

	It("should floor the output size", func() {
		conv.Strides = 4
		conv.KernelSize = 11
		layer, err := arch.AppendConvolution("conv1", conv)

		Expect(err).NotTo(HaveOccurred())
		Expect(layer.OutputSize()).To(Equal(53))
	})

	DescribeTable("output size formula",
		func(padding Padding, window, strides, input, want int) {
			Expect(OutputSize(input, window, strides, padding)).To(Equal(want))
		},
		Entry("valid 3x3", PaddingValid, 3, 1, 224, 222),
		Entry("same 3x3", PaddingSame, 3, 1, 224, 224),
		Entry("valid strided", PaddingValid, 3, 2, 224, 111),
		Entry("same strided odd", PaddingSame, 2, 2, 7, 3),
		Entry("valid case-insensitive", Padding("VALID"), 5, 1, 32, 28),
		Entry("window of one", PaddingValid, 1, 1, 10, 10),
	)

	DescribeTable("padding modes",
		func(padding Padding, validMode, sameMode bool) {
			Expect(padding.IsValidMode()).To(Equal(validMode))
			Expect(padding.IsSameMode()).To(Equal(sameMode))
			Expect(padding.Known()).To(Equal(validMode || sameMode))
		},
		Entry("valid", PaddingValid, true, false),
		Entry("same upper case", Padding("SAME"), false, true),
		Entry("full", Padding("full"), false, false),
		Entry("empty", Padding(""), false, false),
	)

	It("should shrink more with valid than with same padding", func() {
		for window := 2; window <= 7; window++ {
			for strides := 1; strides <= 3; strides++ {
				valid := OutputSize(64, window, strides, PaddingValid)
				same := OutputSize(64, window, strides, PaddingSame)
				Expect(valid).To(BeNumerically("<=", same))
			}

			Expect(OutputSize(64, window, 1, PaddingValid)).
				To(BeNumerically("<", OutputSize(64, window, 1, PaddingSame)))
		}
	})

	It("should pass shapes through fully connected layers", func() {
		_, err := arch.AppendConvolution("conv1", conv)
		Expect(err).NotTo(HaveOccurred())

		fc, err := arch.AppendFullyConnected("fc1")
		Expect(err).NotTo(HaveOccurred())
		Expect(fc.OutputSize()).To(Equal(222))
		Expect(fc.ChannelsOut()).To(Equal(64))

		next, err := arch.AppendConvolution("conv2", conv)
		Expect(err).NotTo(HaveOccurred())
		Expect(next.Conv.MatSize).To(Equal(222))
	})

	Context("when appending by type name", func() {
		It("should accept descriptor names case-insensitively", func() {
			_, err := arch.AppendLayer("convolution", "conv1", conv)
			Expect(err).NotTo(HaveOccurred())

			layer, err := arch.AppendLayer("MAX_POOL", "pool1", PoolSpec{
				PoolSize: 2, Strides: 2, Padding: PaddingValid,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(layer.Type).To(Equal(MaxPool))

			layer, err = arch.AppendLayer("Fully_connected", "fc", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(layer.Type).To(Equal(FullyConnected))
		})

		It("should reject unknown types", func() {
			_, err := arch.AppendLayer("Dropout", "drop", nil)

			var typeErr *UnknownLayerTypeError
			Expect(errors.As(err, &typeErr)).To(BeTrue())
			Expect(typeErr.Type).To(Equal("Dropout"))
			Expect(arch.Len()).To(Equal(0))
		})

		It("should reject parameters of another type", func() {
			_, err := arch.AppendLayer("Max_pool", "pool", conv)

			var paramErr *InvalidLayerParamsError
			Expect(errors.As(err, &paramErr)).To(BeTrue())
			Expect(paramErr.Param).To(Equal("params"))
		})

		It("should reject missing parameters", func() {
			_, err := arch.AppendLayer("Convolution", "conv", nil)

			var paramErr *InvalidLayerParamsError
			Expect(errors.As(err, &paramErr)).To(BeTrue())
		})
	})

	DescribeTable("invalid convolution parameters",
		func(mutate func(*ConvSpec), param string) {
			mutate(&conv)
			_, err := arch.AppendConvolution("conv", conv)

			var paramErr *InvalidLayerParamsError
			Expect(errors.As(err, &paramErr)).To(BeTrue())
			Expect(paramErr.Param).To(Equal(param))
			Expect(arch.Len()).To(Equal(0))
		},
		Entry("no kernel size", func(c *ConvSpec) { c.KernelSize = 0 }, "kernelsize"),
		Entry("no strides", func(c *ConvSpec) { c.Strides = 0 }, "strides"),
		Entry("no channels", func(c *ConvSpec) { c.ChannelsOut = 0 }, "channels_out"),
		Entry("no padding", func(c *ConvSpec) { c.Padding = "" }, "padding"),
		Entry("bad padding", func(c *ConvSpec) { c.Padding = "full" }, "padding"),
		Entry("no activation", func(c *ConvSpec) { c.Activation = "" }, "activation"),
		Entry("kernel larger than input",
			func(c *ConvSpec) { c.KernelSize = 300 }, "kernelsize"),
	)

	It("should reject a pooling window larger than the input", func() {
		_, err := arch.AppendMaxPool("pool", PoolSpec{
			PoolSize: 300, Strides: 1, Padding: PaddingValid,
		})

		var paramErr *InvalidLayerParamsError
		Expect(errors.As(err, &paramErr)).To(BeTrue())
		Expect(paramErr.Param).To(Equal("pool_size"))
	})

	It("should do nothing when removing from an empty architecture", func() {
		arch.RemoveLastLayer()

		Expect(arch.Len()).To(Equal(0))
	})

	It("should return to the initial state after appending and removing", func() {
		initial := arch.Serialize()

		for i := 0; i < 4; i++ {
			_, err := arch.AppendConvolution("conv", conv)
			Expect(err).NotTo(HaveOccurred())
		}

		for i := 0; i < 4; i++ {
			arch.RemoveLastLayer()
		}

		Expect(arch.Len()).To(Equal(0))
		Expect(arch.Input()).To(Equal(Input{Dimension: 3, Size: 224}))
		Expect(arch.Serialize()).To(Equal(initial))
	})

	It("should keep indices contiguous after removing the last layer", func() {
		_, _ = arch.AppendConvolution("conv1", conv)
		_, _ = arch.AppendConvolution("conv2", conv)
		arch.RemoveLastLayer()

		layer, err := arch.AppendConvolution("conv3", conv)
		Expect(err).NotTo(HaveOccurred())
		Expect(layer.Index).To(Equal(2))
		Expect(layer.Conv.MatSize).To(Equal(222))
	})

	It("should hand out copies of layers", func() {
		_, _ = arch.AppendConvolution("conv1", conv)

		layer, ok := arch.Layer(1)
		Expect(ok).To(BeTrue())
		layer.Conv.ChannelsOut = 1

		again, _ := arch.Layer(1)
		Expect(again.Conv.ChannelsOut).To(Equal(64))

		_, ok = arch.Layer(2)
		Expect(ok).To(BeFalse())
	})

	It("should describe every layer", func() {
		_, _ = arch.AppendConvolution("conv1", conv)
		_, _ = arch.AppendMaxPool("pool1", PoolSpec{
			PoolSize: 2, Strides: 2, Padding: PaddingSame,
		})

		Expect(arch.Describe()).To(Equal(
			"2 layer network\n\n" +
				"Input size 224x224x3\n\n" +
				"conv1 (Convolution), now 222x222 with 64 channels\n" +
				"pool1 (Max_pool), now 111x111 with 64 channels\n"))
	})

	It("should log the shape of appended layers", func() {
		var lines []string
		arch.SetLogger(funcr.New(func(prefix, args string) {
			lines = append(lines, args)
		}, funcr.Options{}))

		_, _ = arch.AppendConvolution("conv1", conv)

		Expect(lines).To(HaveLen(1))
		Expect(lines[0]).To(ContainSubstring(`"outputSize"=222`))
		Expect(lines[0]).To(ContainSubstring(`"channelsOut"=64`))
	})
})
