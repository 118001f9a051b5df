// Demo program to showcase the Freeda ticket viewer with a scripted
// conversation, no server required.
package main

import (
	"fmt"
	"os"
	"time"

	"freeda-support/src/contracts"
	"freeda-support/src/ticket"
	"freeda-support/src/tui"
)

// step is one scripted event and the pause before it is delivered.
type step struct {
	delay time.Duration
	event contracts.Event
}

func main() {
	fmt.Println("Generating sample conversation...")
	t := sampleTicket()
	script := sampleScript(t)

	fmt.Printf("Loaded ticket %s with %d scripted events.\n", t.ID, len(script))
	fmt.Println("Launching TUI...")
	time.Sleep(500 * time.Millisecond) // Brief pause for effect

	events := make(chan contracts.Event)
	go play(events, script)

	if err := tui.Start(t.ID, events); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		os.Exit(1)
	}
}

func play(events chan<- contracts.Event, script []step) {
	defer close(events)
	for _, s := range script {
		time.Sleep(s.delay)
		events <- s.event
	}
}

func sampleTicket() *contracts.Ticket {
	start := time.Now().Add(-12 * time.Minute)
	t, err := ticket.New(ticket.NewID(),
		"Bonjour, depuis hier soir ma Freebox Pop affiche l'étape 6 en boucle et je n'ai plus internet.",
		"Camille Martin", "chat", start)
	if err != nil {
		panic(err)
	}
	ticket.AppendAssistantMessage(t,
		"Bonjour Camille, je suis désolée pour ce désagrément. L'étape 6 indique que la box n'arrive pas à synchroniser avec la fibre. Pouvez-vous vérifier que le câble fibre est bien branché sur le boîtier ONT ?\n\nCordialement,\nAssistant Free",
		start.Add(20*time.Second))
	ticket.AppendMessage(t, "Oui le câble est bien branché, j'ai même débranché et rebranché.", "Camille Martin", start.Add(3*time.Minute))
	return t
}

func sampleScript(t *contracts.Ticket) []step {
	msg := func(kind contracts.MessageType, content string) contracts.Event {
		return contracts.NewMessageEvent(t.ID, contracts.Message{
			ID:        ticket.NewID(),
			Content:   content,
			Type:      kind,
			Timestamp: time.Now(),
		})
	}
	return []step{
		{800 * time.Millisecond, contracts.NewSnapshotEvent(t)},
		{2 * time.Second, msg(contracts.MessageAssistant,
			"Merci. Pouvez-vous redémarrer la box en la débranchant 30 secondes ? Si l'étape 6 persiste, un incident peut être en cours dans votre secteur.")},
		{4 * time.Second, msg(contracts.MessageClient,
			"C'est fait, toujours bloqué. Franchement ça fait la troisième fois ce mois-ci, je commence à regarder ailleurs.")},
		{2 * time.Second, contracts.NewStatusEvent(t.ID, contracts.StatusInProgress)},
		{2 * time.Second, msg(contracts.MessageAssistant,
			"Je comprends votre frustration. J'ai transmis votre dossier en priorité à un conseiller qui vous rappellera sous 2 heures.")},
		{5 * time.Second, contracts.NewStatusEvent(t.ID, contracts.StatusClosed)},
	}
}
