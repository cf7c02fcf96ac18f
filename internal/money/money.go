// Package money содержит чистые денежные примитивы: округление с учётом
// валюты и распределение целой суммы по весам без накопления дрейфа.
package money

import (
	"math"
	"math/bits"
	"sort"
	"strings"
)

// MaxMinorUnits — безопасная граница денежных полей в ingest-запросе.
// Сервер хранит суммы в фиксированной точности; значения за границей
// обрезаются, чтобы не переполнить серверное хранилище.
const MaxMinorUnits int64 = 99_999_999_999

// tieEpsilon — допуск при распознавании "ровно половины" в Quantize.
// Прямое сравнение с 0.5 ненадёжно из-за ошибок представления float64.
const tieEpsilon = 1e-9

// exponents перечисляет валюты с нестандартным числом минорных разрядов.
// Для всех остальных валют используется 2.
var exponents = map[string]int{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0,
	"KMF": 0, "KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0, "VND": 0,
	"VUV": 0, "XAF": 0, "XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

// Exponent возвращает число минорных разрядов валюты (2 для USD/EUR, 0 для JPY).
func Exponent(currency string) int {
	if exp, ok := exponents[strings.ToUpper(currency)]; ok {
		return exp
	}
	return 2
}

// roundHalfEven округляет v до целого по правилу банковского округления:
// ровно половина уходит к чётному соседу, что убирает систематический
// сдвиг вверх при многократной агрегации.
func roundHalfEven(v float64) float64 {
	floor := math.Floor(v)
	frac := v - floor

	if math.Abs(frac-0.5) < tieEpsilon {
		if math.Mod(floor, 2) == 0 {
			return floor
		}
		return floor + 1
	}
	if frac > 0.5 {
		return floor + 1
	}
	return floor
}

// Quantize округляет сумму до минорной точности валюты банковским округлением.
// Идемпотентна: Quantize(Quantize(x)) == Quantize(x).
func Quantize(amount float64, currency string) float64 {
	scale := math.Pow10(Exponent(currency))
	return roundHalfEven(amount*scale) / scale
}

// ToMinor переводит десятичную сумму в целые минорные единицы валюты.
func ToMinor(amount float64, currency string) int64 {
	scale := math.Pow10(Exponent(currency))
	return int64(roundHalfEven(amount * scale))
}

// FromMinor переводит минорные единицы обратно в десятичную сумму.
func FromMinor(minor int64, currency string) float64 {
	return float64(minor) / math.Pow10(Exponent(currency))
}

// Clamp ограничивает сумму безопасной границей MaxMinorUnits с обеих сторон.
func Clamp(minor int64) int64 {
	if minor > MaxMinorUnits {
		return MaxMinorUnits
	}
	if minor < -MaxMinorUnits {
		return -MaxMinorUnits
	}
	return minor
}

// ApplyBasisPoints вычисляет долю суммы в базисных пунктах (825 = 8.25%)
// с банковским округлением результата.
func ApplyBasisPoints(minor int64, bps int64) int64 {
	return int64(roundHalfEven(float64(minor) * float64(bps) / 10_000))
}

// Allocate распределяет целую сумму total по корзинам пропорционально весам
// методом наибольших остатков: каждая корзина получает floor своей точной
// доли, а недостача раздаётся по единице корзинам с наибольшим дробным
// остатком; при равных остатках выигрывает меньший индекс. Гарантируется
// sum(result) == total при любых весах. Нулевые веса в сумме дают
// равномерное распределение с остатком в пользу ранних корзин.
// Отрицательные total и веса не поддерживаются и трактуются как нули.
func Allocate(total int64, weights []int64) []int64 {
	if len(weights) == 0 {
		return nil
	}
	result := make([]int64, len(weights))
	if total <= 0 {
		return result
	}

	var sumW uint64
	for _, w := range weights {
		if w > 0 {
			sumW += uint64(w)
		}
	}
	if sumW == 0 {
		// Все веса нулевые: делим поровну, остаток — ранним корзинам.
		base := total / int64(len(weights))
		rem := total % int64(len(weights))
		for i := range result {
			result[i] = base
			if int64(i) < rem {
				result[i]++
			}
		}
		return result
	}

	// Точная доля i-й корзины — total*w/sumW; произведение может не
	// помещаться в 64 бита, поэтому делим через 128-битное умножение.
	type remainderIdx struct {
		rem uint64
		idx int
	}
	remainders := make([]remainderIdx, len(weights))
	var allocated int64
	for i, w := range weights {
		if w <= 0 {
			remainders[i] = remainderIdx{rem: 0, idx: i}
			continue
		}
		// Доля не превышает total, поэтому hi < sumW и деление корректно.
		hi, lo := bits.Mul64(uint64(total), uint64(w))
		q, r := bits.Div64(hi, lo, sumW)
		result[i] = int64(q)
		allocated += int64(q)
		remainders[i] = remainderIdx{rem: r, idx: i}
	}

	// Раздаём недостачу по наибольшим остаткам, при равенстве — по индексу.
	sort.SliceStable(remainders, func(a, b int) bool {
		if remainders[a].rem != remainders[b].rem {
			return remainders[a].rem > remainders[b].rem
		}
		return remainders[a].idx < remainders[b].idx
	})
	shortfall := total - allocated
	for i := int64(0); i < shortfall; i++ {
		result[remainders[i].idx]++
	}

	return result
}
