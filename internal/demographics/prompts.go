package demographics

import "fmt"

const interpretationSystemPrompt = `Ești un statistician care explică rezultate pentru factori de decizie din administrația publică.
Primești o corelație deja calculată și o descrii într-o singură propoziție clară, în limba română, fără jargon.
Răspunde DOAR cu JSON valid: {"interpretation": "..."}`

func interpretationUserPrompt(c Correlation) string {
	return fmt.Sprintf(`Variabila 1: %s
Variabila 2: %s
Coeficient Pearson: %.2f
p-value: %.3f
Semnificativ statistic (p<0.05): %t
Număr de observații: %d`,
		Variable(c.Variable1).Label(),
		Variable(c.Variable2).Label(),
		c.Coefficient,
		c.PValue,
		c.Significant,
		c.SampleSize,
	)
}
