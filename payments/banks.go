package payments

type Bank struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// Banks are the settlement banks tutors can choose from for payouts.
var Banks = []Bank{
	{Name: "Capitec Bank", Code: "470010"},
	{Name: "FNB", Code: "250655"},
	{Name: "Standard Bank", Code: "051001"},
	{Name: "Absa", Code: "632005"},
	{Name: "Nedbank", Code: "198765"},
	{Name: "TymeBank", Code: "678910"},
}

func BankByCode(code string) (Bank, bool) {
	for _, b := range Banks {
		if b.Code == code {
			return b, true
		}
	}
	return Bank{}, false
}
