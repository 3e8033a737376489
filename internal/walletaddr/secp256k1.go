package walletaddr

import "math/big"

// secp256k1 curve parameters: y^2 = x^3 + 7 (mod p).
//
// crypto/elliptic's generic CurveParams implementation assumes a = -3,
// which secp256k1 does not satisfy (a = 0), so the affine point arithmetic
// below is hand-rolled against the correct curve equation rather than
// routed through the standard library's generic curve code.
var (
	secp256k1P  = mustHex("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEFFFFFC2F")
	secp256k1N  = mustHex("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141")
	secp256k1Gx = mustHex("79BE667EF9DCBBAC55A06295CE870B07029BFCDB2DCE28D959F2815B16F81798")
	secp256k1Gy = mustHex("483ADA7726A3C4655DA4FBFC0E1108A8FD17B448A68554199C47D08FFB10D4B8")
)

func mustHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("walletaddr: bad curve constant " + s)
	}
	return n
}

type point struct {
	x, y *big.Int // nil, nil represents the point at infinity
}

func (p point) isInfinity() bool {
	return p.x == nil || p.y == nil
}

// double returns 2*p on the curve y^2 = x^3 + 7 (mod P).
func double(p point) point {
	if p.isInfinity() || p.y.Sign() == 0 {
		return point{}
	}
	// lambda = (3*x^2) / (2*y)
	num := new(big.Int).Mul(p.x, p.x)
	num.Mul(num, big.NewInt(3))
	den := new(big.Int).Lsh(p.y, 1)
	den.ModInverse(den, secp256k1P)
	lambda := num.Mul(num, den)
	lambda.Mod(lambda, secp256k1P)

	x3 := new(big.Int).Mul(lambda, lambda)
	x3.Sub(x3, new(big.Int).Lsh(p.x, 1))
	x3.Mod(x3, secp256k1P)

	y3 := new(big.Int).Sub(p.x, x3)
	y3.Mul(y3, lambda)
	y3.Sub(y3, p.y)
	y3.Mod(y3, secp256k1P)

	return point{x3, y3}
}

// add returns p+q on the curve.
func add(p, q point) point {
	if p.isInfinity() {
		return q
	}
	if q.isInfinity() {
		return p
	}
	if p.x.Cmp(q.x) == 0 {
		if p.y.Cmp(q.y) != 0 {
			return point{}
		}
		return double(p)
	}

	num := new(big.Int).Sub(q.y, p.y)
	den := new(big.Int).Sub(q.x, p.x)
	den.Mod(den, secp256k1P)
	den.ModInverse(den, secp256k1P)
	lambda := num.Mul(num, den)
	lambda.Mod(lambda, secp256k1P)

	x3 := new(big.Int).Mul(lambda, lambda)
	x3.Sub(x3, p.x)
	x3.Sub(x3, q.x)
	x3.Mod(x3, secp256k1P)

	y3 := new(big.Int).Sub(p.x, x3)
	y3.Mul(y3, lambda)
	y3.Sub(y3, p.y)
	y3.Mod(y3, secp256k1P)

	return point{x3, y3}
}

// scalarMult returns k*p using double-and-add.
func scalarMult(k *big.Int, p point) point {
	result := point{}
	addend := p
	kk := new(big.Int).Mod(k, secp256k1N)
	for i := 0; i < kk.BitLen(); i++ {
		if kk.Bit(i) == 1 {
			result = add(result, addend)
		}
		addend = double(addend)
	}
	return result
}

// publicKeyFromPrivate derives the uncompressed public key point for a
// 32-byte big-endian secp256k1 private key scalar.
func publicKeyFromPrivate(priv *big.Int) (x, y *big.Int) {
	g := point{new(big.Int).Set(secp256k1Gx), new(big.Int).Set(secp256k1Gy)}
	p := scalarMult(priv, g)
	return p.x, p.y
}
