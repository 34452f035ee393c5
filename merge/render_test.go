package merge

import "testing"

func TestRenderSubstitutesAllOccurrences(t *testing.T) {
	r := Recipient{"Name": "Ada", "Company": "Acme"}
	got := Render("Hi {{Name}}, welcome to {{Company}}. Bye {{Name}}!", r)
	want := "Hi Ada, welcome to Acme. Bye Ada!"
	if got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestRenderUnknownPlaceholderLeftVerbatim(t *testing.T) {
	r := Recipient{"Name": "Ada"}
	got := Render("Hi {{Name}}, your code is {{Code}}.", r)
	want := "Hi Ada, your code is {{Code}}."
	if got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestRenderIsSinglePass(t *testing.T) {
	// A substituted value containing placeholder syntax must not be
	// re-expanded within the same render.
	r := Recipient{"Name": "{{Name}}", "Other": "x"}
	got := Render("{{Name}} {{Other}}", r)
	want := "{{Name}} x"
	if got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestRenderCaseSensitive(t *testing.T) {
	r := Recipient{"name": "ada"}
	got := Render("Hi {{Name}}", r)
	if got != "Hi {{Name}}" {
		t.Fatalf("Render() = %q, want placeholder untouched", got)
	}
}

func TestRenderTripleBraces(t *testing.T) {
	r := Recipient{"Name": "Ada"}
	got := Render("{{{Name}}}", r)
	want := "{Ada}"
	if got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestRenderUnterminatedPlaceholder(t *testing.T) {
	r := Recipient{"Name": "Ada"}
	got := Render("Hi {{Name", r)
	if got != "Hi {{Name" {
		t.Fatalf("Render() = %q, want input unchanged", got)
	}
}

func TestRenderEmptyValue(t *testing.T) {
	r := Recipient{"Name": ""}
	got := Render("Hi {{Name}}!", r)
	if got != "Hi !" {
		t.Fatalf("Render() = %q, want %q", got, "Hi !")
	}
}

func TestRenderNoPlaceholders(t *testing.T) {
	r := Recipient{"Name": "Ada"}
	got := Render("plain text", r)
	if got != "plain text" {
		t.Fatalf("Render() = %q, want input unchanged", got)
	}
}

func TestRenderSubjectAndBodyScenario(t *testing.T) {
	r := Recipient{"Email": "a@b.com", "Name": "A"}
	tmpl := Template{Subject: "Hi {{Name}}", Body: "Dear {{Name}},\nBye"}
	if got := Render(tmpl.Subject, r); got != "Hi A" {
		t.Errorf("subject = %q, want %q", got, "Hi A")
	}
	if got := Render(tmpl.Body, r); got != "Dear A,\nBye" {
		t.Errorf("body = %q, want %q", got, "Dear A,\nBye")
	}
}
