package commit

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("UserID", func() {
	DescribeTable("MarshalJSON",
		func(id string, expected string) {
			data, err := json.Marshal(UserID(id))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal(expected))
		},
		Entry("canonical integer", "7", `7`),
		Entry("negative integer", "-3", `-3`),
		Entry("leading zeros", "007", `"007"`),
		Entry("explicit plus sign", "+5", `"+5"`),
		Entry("uuid", "a1b2-c3", `"a1b2-c3"`),
		Entry("empty", "", `""`),
	)

	DescribeTable("UnmarshalJSON",
		func(data string, expected UserID) {
			var id UserID
			Expect(json.Unmarshal([]byte(data), &id)).To(Succeed())
			Expect(id).To(Equal(expected))
		},
		Entry("number", `7`, UserID("7")),
		Entry("string", `"007"`, UserID("007")),
	)

	It("should reject a non-scalar id", func() {
		var id UserID
		Expect(json.Unmarshal([]byte(`{}`), &id)).NotTo(Succeed())
	})
})
