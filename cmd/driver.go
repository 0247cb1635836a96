// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/liquidctl/liquidtux/pkg/cooling"
	"github.com/liquidctl/liquidtux/pkg/grid"
	"github.com/liquidctl/liquidtux/pkg/hydro"
	"github.com/liquidctl/liquidtux/pkg/kraken"
)

// parseProductID parses a hex USB product ID ("0x0c29" or "0c29").
func parseProductID(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid product ID %q: %v", s, err)
	}
	return uint16(v), nil
}

// newDriver selects the protocol driver for a device. With an explicit
// family name the product ID narrows the model within it; without one
// the product ID alone decides, tried against every known family.
func newDriver(family string, productID uint16) (cooling.Driver, error) {
	switch family {
	case "hydro":
		m, ok := hydro.ModelByProduct(productID)
		if !ok {
			return nil, fmt.Errorf("product 0x%04x is not a known Hydro cooler", productID)
		}
		return hydro.New(m), nil

	case "kraken":
		k, ok := kraken.KindByProduct(productID)
		if !ok {
			return nil, fmt.Errorf("product 0x%04x is not a known Kraken cooler", productID)
		}
		return kraken.New(k), nil

	case "grid":
		m, ok := grid.ModelByProduct(productID)
		if !ok {
			return nil, fmt.Errorf("product 0x%04x is not a known Grid/Smart Device hub", productID)
		}
		return grid.New(m), nil

	case "":
		if m, ok := hydro.ModelByProduct(productID); ok {
			return hydro.New(m), nil
		}
		if k, ok := kraken.KindByProduct(productID); ok {
			return kraken.New(k), nil
		}
		if m, ok := grid.ModelByProduct(productID); ok {
			return grid.New(m), nil
		}
		return nil, fmt.Errorf("no driver for product 0x%04x (use --driver to force a family)", productID)

	default:
		return nil, fmt.Errorf("unknown driver %q (expected hydro, kraken or grid)", family)
	}
}
