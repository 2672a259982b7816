// internal/dsp/complex.go
package dsp

// Complex is a complex sample used as the FFT working element.
type Complex struct {
	Re float64
	Im float64
}

func (a Complex) Add(b Complex) Complex {
	return Complex{Re: a.Re + b.Re, Im: a.Im + b.Im}
}

func (a Complex) Mul(b Complex) Complex {
	return Complex{
		Re: a.Re*b.Re - a.Im*b.Im,
		Im: a.Re*b.Im + a.Im*b.Re,
	}
}

func (a Complex) Neg() Complex {
	return Complex{Re: -a.Re, Im: -a.Im}
}

// Abs2 returns |a|², the spectral power of a bin.
func (a Complex) Abs2() float64 {
	return a.Re*a.Re + a.Im*a.Im
}
