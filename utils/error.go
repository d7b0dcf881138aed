package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

var ErrorUnauthorized = errors.New("unauthorized")

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
