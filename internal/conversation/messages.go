package conversation

// User-facing prompt text. Kept in one place so the flow logic reads as
// transitions, not string soup.
const (
	msgWelcome = "👋 Hi! I'm Easely, your academic deadline assistant. " +
		"I track your tasks and remind you before they're due."

	msgConsentPrompt = "Before we start, please review our privacy policy. " +
		"It explains how your data and Canvas integration are handled.\n\n" +
		"Reply 'yes' to agree, or 'no' to decline."

	msgConsentReprompt = "Please reply 'yes' to agree to the privacy policy, " +
		"or 'no' to decline."

	msgConsentDeclined = "I understand. Unfortunately, I can't help you without " +
		"accepting our privacy policy. Feel free to return anytime if you change your mind! 👋"

	msgTokenPrompt = "🎉 Thanks! To sync your Canvas assignments, paste your " +
		"Canvas access token here.\n\nType 'skip' to set this up later."

	msgTokenInvalid = "🤔 That doesn't look like a Canvas access token. " +
		"Tokens are long strings with no spaces.\n\n" +
		"Paste your token, or type 'skip' to set this up later."

	msgOnboardDoneNoToken = "✅ You're all set! You can connect Canvas later " +
		"from the settings."

	msgOnboardDone = "🎉 Awesome! Your Canvas integration is complete!"

	msgSyncDeferred = "I couldn't reach Canvas just now. I'll pick up your " +
		"assignments on the next sync."

	msgTitlePrompt = "Let's add a new task! What's the title of your task?"

	msgTitleInvalid = "🤔 That's not quite a task title. \n\n" +
		"Please enter a descriptive title (e.g., 'Math Homework Chapter 5'), " +
		"or type 'cancel' to go back."

	msgCoursePrompt = "Which course is this for? Type the course name, " +
		"or 'skip' if it's not for a course."

	msgDatePrompt = "📅 When is it due? You can say 'today', 'tomorrow', " +
		"a weekday like 'friday', or a date like 12/25/2026."

	msgDateInvalid = "📅 I couldn't read that as a date. \n\n" +
		"Try 'today', 'tomorrow', a weekday, or MM/DD/YYYY " +
		"(e.g., '12/25/2026'), or type 'cancel' to go back."

	msgCustomDatePrompt = "Please enter the date (format: MM/DD/YYYY):"

	msgTimePrompt = "⏰ What time is it due? For example '11:59 PM', '14:30', " +
		"or 'noon'."

	msgTimeInvalid = "⏰ I couldn't read that as a time. \n\n" +
		"Try '2:30 PM', '14:30', or '11:59 PM', or type 'cancel' to go back."

	msgDescriptionPrompt = "📝 Any notes or description? Type them now, " +
		"or 'skip'."

	msgCancelled = "Task creation cancelled. You can try again anytime!"

	msgSomethingWrong = "Sorry, something went wrong. Please try again."

	msgUnrecognized = "I didn't understand that. Type 'menu' to see available " +
		"options or 'help' for assistance."

	msgMenu = "📚 Here's what I can do:\n" +
		"• 'add task' to create a task\n" +
		"• 'today' for tasks due today\n" +
		"• 'week' for tasks due this week\n" +
		"• 'overdue' for overdue tasks\n" +
		"• 'all' for everything upcoming"

	msgPremiumPitch = "💎 Easely Premium reminds you 1 week, 3 days, 1 day, " +
		"8 hours, 2 hours and 1 hour before each deadline. The free plan " +
		"reminds you 24 hours before.\n\nType 'activate' to upgrade."

	msgPremiumActivated = "💎 Premium activated! You'll now get the full " +
		"reminder schedule before every deadline."
)
