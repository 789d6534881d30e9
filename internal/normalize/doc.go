// Package normalize turns raw strings pulled from retailer pages into
// canonical text, URL, price and category values. Every function is total:
// malformed input yields an absent result (ok == false) rather than an error.
package normalize
