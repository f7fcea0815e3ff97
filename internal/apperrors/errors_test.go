package apperrors_test

import (
	"errors"
	"net/http"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/SaintWyss/ragcore/internal/apperrors"
)

func TestApperrors(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "AppErrors Suite")
}

var _ = Describe("AppError", func() {
	Context("basic error creation", func() {
		It("should create an error with the default status code", func() {
			err := apperrors.New(apperrors.ErrorTypeValidation, "bad input")

			Expect(err.Type).To(Equal(apperrors.ErrorTypeValidation))
			Expect(err.Message).To(Equal("bad input"))
			Expect(err.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(err.Details).To(BeEmpty())
			Expect(err.Cause).To(BeNil())
		})

		It("should format Error() without details", func() {
			err := apperrors.New(apperrors.ErrorTypeValidation, "bad input")
			Expect(err.Error()).To(Equal("validation: bad input"))
		})

		It("should include details in Error() when present", func() {
			err := apperrors.New(apperrors.ErrorTypeValidation, "bad input").WithDetails("field: title")
			Expect(err.Error()).To(Equal("validation: bad input (field: title)"))
		})
	})

	Context("wrapping", func() {
		It("should preserve the cause and expose it via Unwrap", func() {
			cause := errors.New("connection refused")
			wrapped := apperrors.Wrap(cause, apperrors.ErrorTypeUpstreamUnavailable, "embedding call failed")

			Expect(wrapped.Cause).To(Equal(cause))
			Expect(wrapped.Unwrap()).To(Equal(cause))
			Expect(errors.Is(wrapped, cause)).To(BeTrue())
		})
	})

	DescribeTable("HTTP status code mapping",
		func(t apperrors.ErrorType, status int) {
			err := apperrors.New(t, "x")
			Expect(err.StatusCode).To(Equal(status))
		},
		Entry("validation", apperrors.ErrorTypeValidation, http.StatusBadRequest),
		Entry("unsupported media", apperrors.ErrorTypeUnsupportedMedia, http.StatusUnsupportedMediaType),
		Entry("payload too large", apperrors.ErrorTypePayloadTooLarge, http.StatusRequestEntityTooLarge),
		Entry("unauthenticated", apperrors.ErrorTypeUnauthenticated, http.StatusUnauthorized),
		Entry("access denied", apperrors.ErrorTypeAccessDenied, http.StatusForbidden),
		Entry("not found", apperrors.ErrorTypeNotFound, http.StatusNotFound),
		Entry("conflict unique", apperrors.ErrorTypeConflictUnique, http.StatusConflict),
		Entry("conflict state", apperrors.ErrorTypeConflictState, http.StatusBadRequest),
		Entry("policy refusal", apperrors.ErrorTypePolicyRefusal, http.StatusUnprocessableEntity),
		Entry("upstream timeout", apperrors.ErrorTypeUpstreamTimeout, http.StatusGatewayTimeout),
		Entry("upstream unavailable", apperrors.ErrorTypeUpstreamUnavailable, http.StatusServiceUnavailable),
		Entry("upstream error", apperrors.ErrorTypeUpstreamError, http.StatusInternalServerError),
		Entry("internal", apperrors.ErrorTypeInternal, http.StatusInternalServerError),
	)

	Describe("IsType / GetType / GetStatusCode", func() {
		It("should identify AppError types correctly", func() {
			validationErr := apperrors.NewValidationError("x")

			Expect(apperrors.IsType(validationErr, apperrors.ErrorTypeValidation)).To(BeTrue())
			Expect(apperrors.IsType(validationErr, apperrors.ErrorTypeAccessDenied)).To(BeFalse())
		})

		It("should treat non-AppError errors as internal", func() {
			regular := errors.New("boom")
			Expect(apperrors.IsType(regular, apperrors.ErrorTypeValidation)).To(BeFalse())
			Expect(apperrors.GetType(regular)).To(Equal(apperrors.ErrorTypeInternal))
			Expect(apperrors.GetStatusCode(regular)).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("SafeErrorMessage", func() {
		It("passes validation messages through unchanged", func() {
			err := apperrors.NewValidationError("title is required")
			Expect(apperrors.SafeErrorMessage(err)).To(Equal("title is required"))
		})

		It("returns a canned message for not-found errors", func() {
			err := apperrors.NewNotFoundError("workspace")
			Expect(apperrors.SafeErrorMessage(err)).To(Equal(apperrors.ErrorMessages.ResourceNotFound))
		})

		It("never leaks the cause of an internal error", func() {
			err := apperrors.Wrap(errors.New("pq: duplicate key value violates constraint"), apperrors.ErrorTypeInternal, "insert failed")
			msg := apperrors.SafeErrorMessage(err)

			Expect(msg).To(Equal("An internal error occurred"))
			Expect(msg).NotTo(ContainSubstring("pq:"))
		})

		It("returns a generic message for plain errors", func() {
			Expect(apperrors.SafeErrorMessage(errors.New("panic: nil pointer"))).To(Equal("An unexpected error occurred"))
		})
	})

	Describe("LogFields", func() {
		It("includes type, status code, details, and underlying error when present", func() {
			cause := errors.New("timeout")
			err := apperrors.Wrapf(cause, apperrors.ErrorTypeUpstreamTimeout, "embedding batch failed").WithDetails("batch=3")

			fields := apperrors.LogFields(err)

			Expect(fields["error_type"]).To(Equal("upstream_timeout"))
			Expect(fields["status_code"]).To(Equal(http.StatusGatewayTimeout))
			Expect(fields["error_details"]).To(Equal("batch=3"))
			Expect(fields["underlying_error"]).To(Equal("timeout"))
		})

		It("omits details and underlying_error when absent", func() {
			fields := apperrors.LogFields(apperrors.NewValidationError("x"))
			Expect(fields).NotTo(HaveKey("error_details"))
			Expect(fields).NotTo(HaveKey("underlying_error"))
		})
	})

	Describe("Chain", func() {
		It("returns nil for no errors", func() {
			Expect(apperrors.Chain()).To(BeNil())
		})

		It("filters nils and returns the sole remaining error unwrapped", func() {
			only := errors.New("only")
			Expect(apperrors.Chain(nil, only, nil)).To(Equal(only))
		})

		It("joins multiple errors with an arrow separator", func() {
			err := apperrors.Chain(errors.New("first"), errors.New("second"))
			Expect(err.Error()).To(Equal("first -> second"))
		})
	})
})
