package models

import (
	"time"
)

type Tick struct {
	Code  string    `json:"code"`
	Name  string    `json:"name"`
	Price float64   `json:"price"`
	Time  time.Time `json:"time"`
}
