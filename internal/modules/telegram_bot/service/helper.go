package service

import (
	"fmt"
	"strconv"
	"strings"
)

func onOff(v bool) string {
	if v {
		return "вкл"
	}
	return "выкл"
}

func f2(v float64) string { // для красивого вывода
	return fmt.Sprintf("%.2f", v)
}

func f4(v float64) string {
	return fmt.Sprintf("%.4f", v)
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
}

func parseConfirmData(data string) (verb, token string) {
	verb, token, ok := strings.Cut(data, "::")
	if !ok {
		return "", ""
	}
	return verb, token
}
