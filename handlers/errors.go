package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/solarclean/backoffice/config"
	"github.com/solarclean/backoffice/models"
	"github.com/solarclean/backoffice/utils"
	"github.com/solarclean/backoffice/workflow"
)

var notFoundErrors = []error{
	utils.ErrorRecordNotFound,
	utils.ErrBlobNotFound,
	models.ErrPaymentNotFound,
	models.ErrEntryLineNotFound,
}

var balanceErrors = []error{
	models.ErrUnbalancedEntry,
	models.ErrInvalidEntryLine,
	models.ErrEntryTooFewLines,
	models.ErrEntryValidated,
}

var conflictErrors = []error{
	models.ErrSupplierInvoiceHasMovements,
	models.ErrArticleNotFound,
	models.ErrClientExists,
	models.ErrSupplierInvoiceExists,
	models.ErrStockArticleCodeTaken,
	models.ErrEquipmentCodeTaken,
	models.ErrUsernameTaken,
	models.ErrQuoteAlreadyInvoiced,
	models.ErrDepositAlreadyUsed,
	models.ErrInvoiceHasPayments,
	models.ErrArticleCodeExists,
	models.ErrQuoteHasDeposit,
}

var authErrors = []error{
	models.ErrInvalidCredentials,
	models.ErrUserDisabled,
}

var badRequestErrors = []error{
	utils.ErrValidation,
	utils.ErrUnsupportedFileType,
	workflow.ErrUploadTooLarge,
	models.ErrInvalidStatusTransition,
	models.ErrInvalidQuantity,
	models.ErrDesignationEmpty,
	models.ErrSiteNotOfClient,
	models.ErrCatalogArticleNotFound,
	models.ErrSiteNotFound,
	utils.ErrInvalidPhone,
	models.ErrDepositCannotDeduct,
	models.ErrInvalidEmail,
	models.ErrClientInactive,
	models.ErrQuoteWithoutLines,
	models.ErrQuoteNotEditable,
	models.ErrPurchaseOrderRequired,
	models.ErrQuoteNotAccepted,
	models.ErrInvalidDepositPercent,
	models.ErrInvoiceWithoutLines,
	models.ErrInvalidPaymentAmount,
	models.ErrInvalidPaymentMode,
	models.ErrInvoiceCancelled,
	models.ErrInvoiceNothingDue,
	models.ErrNotADepositInvoice,
	models.ErrInvalidInvoiceStatus,
	models.ErrDunningNotAllowed,
	models.ErrClientMismatch,
	models.ErrInitialStatusNotValid,
	models.ErrMotifRequired,
	models.ErrInvalidUsageType,
	models.ErrCreditNoteWithoutLines,
	models.ErrCreditLineVatOnly,
	models.ErrCreditNoteNotSent,
	models.ErrCreditNoteWrongUsage,
	models.ErrRefundModeRequired,
	models.ErrInvalidFrequency,
	models.ErrInvalidBillingDay,
	models.ErrContractWithoutLine,
	models.ErrContractInactive,
	models.ErrContractNotDue,
	models.ErrContractEnded,
	models.ErrInvalidRenewal,
	models.ErrInvalidContractEnd,
	models.ErrInvalidJournal,
	models.ErrLetteringCode,
	models.ErrLetteringAccount,
	models.ErrInvalidMovementType,
	models.ErrInvalidMovementQty,
	models.ErrDepotRequired,
	models.ErrSameDepot,
	models.ErrSupplierInvoicePosted,
	models.ErrSupplierInvoiceNotPosted,
	models.ErrSupplierInvoiceWithoutLines,
	models.ErrInvalidEquipmentType,
	models.ErrInvalidInterventionType,
	models.ErrInterventionPartQuantity,
	models.ErrSameCompany,
	models.ErrInvalidFlowYear,
	models.ErrInvalidHorizon,
	models.ErrInvalidLoan,
	models.ErrInvalidInvestment,
	models.ErrInvalidProjectionYr,
	models.ErrInvalidRole,
}

func matches(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// StatusFor maps a store error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case matches(err, notFoundErrors):
		return http.StatusNotFound
	case matches(err, balanceErrors):
		return http.StatusUnprocessableEntity
	case matches(err, conflictErrors):
		return http.StatusConflict
	case matches(err, authErrors):
		return http.StatusUnauthorized
	case matches(err, badRequestErrors):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes {"error": message}. Unexpected errors are logged and
// answered with a generic message.
func abortWithError(c *gin.Context, err error) {
	status := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		config.GetLogger().WithFields(logrus.Fields{
			"path":           c.FullPath(),
			"method":         c.Request.Method,
			"correlation_id": correlationId(c),
		}).Error(err.Error())
		message = "internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": message})
}

func correlationId(c *gin.Context) string {
	id, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
	return id
}
