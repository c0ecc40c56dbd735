// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gaskitlink

// Checksum computes the GasKitLink XOR checksum of data.
//
// The first byte (STX) is never included: the sum starts from data[1] and
// folds in every following byte. Inputs shorter than two bytes yield 0.
func Checksum(data []byte) byte {
	if len(data) < 2 {
		return 0
	}
	sum := data[1]
	for _, b := range data[2:] {
		sum ^= b
	}
	return sum
}
