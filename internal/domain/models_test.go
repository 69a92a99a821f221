package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignedQuantity(t *testing.T) {
	cases := []struct {
		name string
		mv   StockMovement
		want float64
	}{
		{"in adds", StockMovement{Type: MovementIn, Quantity: 10}, 10},
		{"out subtracts", StockMovement{Type: MovementOut, Quantity: 10}, -10},
		{"adjustment up", StockMovement{Type: MovementAdjustment, Quantity: 4, Direction: 1}, 4},
		{"adjustment down", StockMovement{Type: MovementAdjustment, Quantity: 4, Direction: -1}, -4},
		{"transfer is neutral", StockMovement{Type: MovementTransfer, Quantity: 99}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.mv.SignedQuantity())
		})
	}
}
