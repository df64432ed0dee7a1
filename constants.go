package fcs

import "github.com/ehrlich-b/go-fcs/internal/constants"

// Re-export constants for public API
const (
	RandomNumberSize = constants.RandomNumberSize
	Sha384Size       = constants.Sha384Size

	DecMinSize = constants.DecMinSize
	DecMaxSize = constants.DecMaxSize
	EncMinSize = constants.EncMinSize
	EncMaxSize = constants.EncMaxSize

	SubkeyCmdMaxSize      = constants.SubkeyCmdMaxSize
	SubkeyRspMaxSize      = constants.SubkeyRspMaxSize
	MeasurementCmdMaxSize = constants.MeasurementCmdMaxSize
	MeasurementRspMaxSize = constants.MeasurementRspMaxSize
	CertificateRspMaxSize = constants.CertificateRspMaxSize

	SigmaSessionIDOne   = constants.SigmaSessionIDOne
	SigmaUnknownSession = constants.SigmaUnknownSession

	DefaultRequestTimeout   = constants.DefaultRequestTimeout
	DefaultCompletedTimeout = constants.DefaultCompletedTimeout
)
