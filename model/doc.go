// Package model holds the types shared by every taskd service: the error
// taxonomy and identifier validation. Job state lives in the job
// sub-package.
package model
