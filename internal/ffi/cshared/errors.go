package main

import "errors"

var errUnknownHandle = errors.New("cshared: unknown or dropped handle")
