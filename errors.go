// errors.go: structured error definitions for the go-bundles runtime
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	stderrors "errors"

	"github.com/agilira/go-errors"
)

// Error codes for the go-bundles runtime
const (
	// Manifest errors (3000-3099)
	ErrCodeManifest         = "MANIFEST_3001"
	ErrCodeManifestNotFound = "MANIFEST_3002"

	// Bundle errors (3100-3199)
	ErrCodeBundle                = "BUNDLE_3101"
	ErrCodeBundleState           = "BUNDLE_3102"
	ErrCodeBundleVersionConflict = "BUNDLE_3103"
	ErrCodeBundleResolve         = "BUNDLE_3104"
	ErrCodeActivator             = "BUNDLE_3105"
	ErrCodeBundleNotFound        = "BUNDLE_3106"

	// Platform errors (3200-3299)
	ErrCodePlatform             = "PLATFORM_3201"
	ErrCodeInvalidServiceObject = "PLATFORM_3202"
	ErrCodeDuplicateExtension   = "PLATFORM_3203"
	ErrCodeNotInitialized       = "PLATFORM_3204"
	ErrCodeExecutableExtension  = "PLATFORM_3205"

	// Storage errors (3300-3399)
	ErrCodeResourceNotFound = "STORAGE_3301"
	ErrCodeStorageIO        = "STORAGE_3302"

	// Code cache errors (3400-3499)
	ErrCodeCodeCache = "CACHE_3401"

	// Configuration errors (3500-3599)
	ErrCodeConfig = "CONFIG_3501"
)

// Manifest error constructors

func NewManifestError(path string, message string, cause error) *errors.Error {
	return newCoded(cause, ErrCodeManifest, "Manifest error: "+message).
		WithUserMessage("The bundle descriptor is malformed").
		WithContext("path", path).
		WithSeverity("error")
}

func NewManifestNotFoundError(path string) *errors.Error {
	return errors.New(ErrCodeManifestNotFound, "No bundle descriptor found").
		WithUserMessage("The directory does not contain a bundle descriptor").
		WithContext("path", path).
		WithSeverity("warning")
}

// Bundle error constructors

func NewBundleError(symbolicName string, message string, cause error) *errors.Error {
	return newCoded(cause, ErrCodeBundle, "Bundle error: "+message).
		WithUserMessage("Bundle operation failed").
		WithContext("bundle", symbolicName).
		WithSeverity("error")
}

func NewBundleStateError(symbolicName string, operation string, state BundleState) *errors.Error {
	return errors.New(ErrCodeBundleState, "Bundle is in the wrong state for "+operation).
		WithUserMessage("The bundle cannot perform this operation in its current state").
		WithContext("bundle", symbolicName).
		WithContext("operation", operation).
		WithContext("state", state.String()).
		WithSeverity("error")
}

func NewBundleVersionConflictError(symbolicName, existingPath, newPath string) *errors.Error {
	return errors.New(ErrCodeBundleVersionConflict, "Bundle symbolic name conflict").
		WithUserMessage("Another bundle with the same symbolic name is already installed").
		WithContext("bundle", symbolicName).
		WithContext("existing_path", existingPath).
		WithContext("path", newPath).
		WithSeverity("error")
}

func NewBundleResolveError(symbolicName string, message string, cause error) *errors.Error {
	return newCoded(cause, ErrCodeBundleResolve, "Bundle resolve error: "+message).
		WithUserMessage("The bundle dependencies could not be resolved").
		WithContext("bundle", symbolicName).
		WithSeverity("warning")
}

func NewActivatorError(symbolicName string, message string, cause error) *errors.Error {
	return newCoded(cause, ErrCodeActivator, "Activator error: "+message).
		WithUserMessage("The bundle activator failed").
		WithContext("bundle", symbolicName).
		WithSeverity("error")
}

func NewBundleNotFoundError(symbolicName string) *errors.Error {
	return errors.New(ErrCodeBundleNotFound, "Bundle not found").
		WithUserMessage("No bundle with this symbolic name is installed").
		WithContext("bundle", symbolicName).
		WithSeverity("error")
}

// Platform error constructors

func NewPlatformError(message string, cause error) *errors.Error {
	return newCoded(cause, ErrCodePlatform, "Platform error: "+message).
		WithUserMessage("Platform operation failed").
		WithSeverity("error")
}

func NewInvalidServiceObjectError(serviceID string, actual any) *errors.Error {
	return errors.New(ErrCodeInvalidServiceObject, "Service object has the wrong type").
		WithUserMessage("The registered service does not provide the requested capability").
		WithContext("service_id", serviceID).
		WithContext("actual_type", typeName(actual)).
		WithSeverity("error")
}

func NewDuplicateExtensionError(extensionID, pointID, contributor string) *errors.Error {
	return errors.New(ErrCodeDuplicateExtension,
		"Duplicate extension id "+extensionID+" for extension point "+pointID+" from plugin "+contributor).
		WithUserMessage("An extension with this id is already contributed to the extension point").
		WithContext("extension_id", extensionID).
		WithContext("extension_point", pointID).
		WithContext("bundle", contributor).
		WithSeverity("error")
}

func NewNotInitializedError(operation string) *errors.Error {
	return errors.New(ErrCodeNotInitialized, "Platform not initialized").
		WithUserMessage("The platform must be initialized before "+operation).
		WithContext("operation", operation).
		WithSeverity("error")
}

func NewExecutableExtensionError(className string, message string, cause error) *errors.Error {
	return newCoded(cause, ErrCodeExecutableExtension, "Executable extension error: "+message).
		WithUserMessage("The executable extension could not be created").
		WithContext("class", className).
		WithSeverity("error")
}

// Storage error constructors

func NewResourceNotFoundError(root, path string) *errors.Error {
	return errors.New(ErrCodeResourceNotFound, "Bundle resource not found").
		WithUserMessage("The requested resource does not exist in the bundle").
		WithContext("root", root).
		WithContext("path", path).
		WithSeverity("warning")
}

func NewStorageError(root string, message string, cause error) *errors.Error {
	return newCoded(cause, ErrCodeStorageIO, "Storage error: "+message).
		WithUserMessage("Bundle storage could not be read").
		WithContext("root", root).
		WithSeverity("error")
}

// Code cache error constructors

func NewCodeCacheError(path string, message string, cause error) *errors.Error {
	return newCoded(cause, ErrCodeCodeCache, "Code cache error: "+message).
		WithUserMessage("The code cache directory is not usable").
		WithContext("path", path).
		WithSeverity("error")
}

// Configuration error constructors

func NewConfigError(path string, message string, cause error) *errors.Error {
	return newCoded(cause, ErrCodeConfig, "Configuration error: "+message).
		WithUserMessage("Platform configuration is invalid").
		WithContext("config_path", path).
		WithSeverity("error")
}

// newCoded wraps cause when it is non-nil.
func newCoded(cause error, code, message string) *errors.Error {
	if cause == nil {
		return errors.New(errors.ErrorCode(code), message)
	}
	return errors.Wrap(cause, errors.ErrorCode(code), message)
}

// HasErrorCode reports whether err, or any error it wraps, carries the given code.
func HasErrorCode(err error, code string) bool {
	for err != nil {
		var structured *errors.Error
		if !stderrors.As(err, &structured) {
			return false
		}
		if structured.ErrorCode() == errors.ErrorCode(code) {
			return true
		}
		if structured.Cause == nil {
			return false
		}
		err = structured.Cause
	}
	return false
}
