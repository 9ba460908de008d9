package services

import (
	"errors"
	"net/http"

	"github.com/hade267/doan-VND-sub000/utils"
)

// conflictAs replaces the generic 409 message with a domain specific one.
func conflictAs(err error, message string) error {
	var appErr *utils.AppError
	if errors.As(err, &appErr) && appErr.Status == http.StatusConflict {
		return &utils.AppError{Status: http.StatusConflict, Message: message, Err: appErr.Err}
	}
	return err
}

// categoryRefError turns a missing referenced category into a 400.
func categoryRefError(err error) error {
	err = utils.FromDBError(err, "Category not found")
	var appErr *utils.AppError
	if errors.As(err, &appErr) && appErr.Status == http.StatusNotFound {
		return &utils.AppError{Status: http.StatusBadRequest, Message: "Category not found", Err: appErr.Err}
	}
	return err
}
